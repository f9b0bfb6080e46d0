package transport

import "context"

type UpdateKind string

const (
	UpdateText     UpdateKind = "text"
	UpdatePhoto    UpdateKind = "photo"
	UpdateMedia    UpdateKind = "media"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event. Exactly one of Message or Callback is set,
// matching Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// ChatID returns the originating chat, used for per-chat ordering.
func (u Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil:
		return u.Callback.ChatID
	}
	return 0
}

// SenderID returns the id of the user who produced the event.
func (u Update) SenderID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.FromID
	case u.Callback != nil:
		return u.Callback.FromID
	}
	return 0
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic (0 if none)

	FromID        int64
	FromFirstName string
	FromLastName  string
	FromUsername  string

	Text      string // caption for media messages
	PhotoID   string // largest photo size
	MediaKind string // "video", "document", "sticker", ... for UpdateMedia
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyTo            int // message id in the target chat (0 = none)
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Document is an in-memory file upload.
type Document struct {
	Name    string
	Data    []byte
	Caption string
}

// Sender is the outbound side of the bot. Errors are *DeliveryError where
// the adapter could classify them.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoID, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
	Forward(ctx context.Context, to ChatTarget, from MessageRef) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Adapter is a Sender that can also produce updates (long polling).
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
