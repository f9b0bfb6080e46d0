package telegram

import (
	"encoding/json"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "relaybot/internal/transport"
)

// ErrUnsupportedUpdate is returned for updates without a message or
// callback payload we route (edited messages, channel posts, polls, ...).
var ErrUnsupportedUpdate = errors.New("telegram: unsupported update")

// DecodeUpdate parses a webhook body into an inbound event.
func DecodeUpdate(body []byte) (kit.Update, error) {
	var u tele.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return kit.Update{}, err
	}
	return Convert(u)
}

// Convert maps a telebot update onto the transport model.
func Convert(u tele.Update) (kit.Update, error) {
	if cb := u.Callback; cb != nil {
		out := &kit.Callback{ID: cb.ID, Data: callbackData(cb.Data)}
		if cb.Sender != nil {
			out.FromID = cb.Sender.ID
		}
		if m := cb.Message; m != nil {
			out.MessageID = m.ID
			if m.Chat != nil {
				out.ChatID = m.Chat.ID
			}
		}
		if out.ChatID == 0 {
			out.ChatID = out.FromID
		}
		return kit.Update{Kind: kit.UpdateCallback, Callback: out}, nil
	}

	m := u.Message
	if m == nil || m.Chat == nil {
		return kit.Update{}, ErrUnsupportedUpdate
	}
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
	}
	if s := m.Sender; s != nil {
		msg.FromID = s.ID
		msg.FromFirstName = s.FirstName
		msg.FromLastName = s.LastName
		msg.FromUsername = s.Username
	}

	switch {
	case m.Photo != nil:
		msg.PhotoID = m.Photo.FileID
		msg.Text = m.Caption
		return kit.Update{Kind: kit.UpdatePhoto, Message: msg}, nil
	case m.Text != "":
		return kit.Update{Kind: kit.UpdateText, Message: msg}, nil
	}
	if kind := mediaKind(m); kind != "" {
		msg.MediaKind = kind
		msg.Text = m.Caption
		return kit.Update{Kind: kit.UpdateMedia, Message: msg}, nil
	}
	return kit.Update{}, ErrUnsupportedUpdate
}

func mediaKind(m *tele.Message) string {
	switch {
	case m.Video != nil:
		return "video"
	case m.Animation != nil:
		return "animation"
	case m.Document != nil:
		return "document"
	case m.Audio != nil:
		return "audio"
	case m.Voice != nil:
		return "voice"
	case m.VideoNote != nil:
		return "video_note"
	case m.Sticker != nil:
		return "sticker"
	case m.Location != nil:
		return "location"
	case m.Contact != nil:
		return "contact"
	}
	return ""
}

// callbackData strips telebot's "\funique|" routing prefix if present.
func callbackData(s string) string {
	if !strings.HasPrefix(s, "\f") {
		return s
	}
	s = strings.TrimPrefix(s, "\f")
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return s[i+1:]
	}
	return s
}
