package relay

import (
	"context"
	"errors"
	"strconv"

	"relaybot/internal/broadcast"
	"relaybot/internal/export"
	"relaybot/internal/metrics"
	"relaybot/internal/reply"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

const (
	CallbackConfirmYes = "confirm_yes"
	CallbackConfirmNo  = "confirm_no"
)

// Request is one update as the rules see it.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Owner   bool
	Command string // lowercased, without "/" and "@bot"
	Args    string // text after the command's first whitespace run
	Payload string // callback data
	Rule    string // name of the matched rule

	target reply.Target
}

func (q *Request) message(kind kit.UpdateKind) bool {
	return q.Update.Message != nil && q.Update.Kind == kind
}

func (q *Request) callback(data string) bool {
	return q.Update.Callback != nil && q.Payload == data
}

// Rule is one entry of the ordered routing table.
type Rule struct {
	Name   string
	Match  func(q *Request) bool
	Handle HandlerFunc
}

// defaultRules is the routing table. Order matters: the first match wins.
func (r *Router) defaultRules() []Rule {
	return []Rule{
		{Name: "start", Match: func(q *Request) bool { return q.Command == "start" }, Handle: r.handleStart},
		{Name: "sendall", Match: func(q *Request) bool { return q.Owner && q.Command == "sendall" }, Handle: r.handleSendall},
		{Name: "exportdata", Match: func(q *Request) bool { return q.Owner && q.Command == "exportdata" }, Handle: r.handleExport},
		{Name: "confirm_yes", Match: func(q *Request) bool { return q.Owner && q.callback(CallbackConfirmYes) }, Handle: r.handleConfirmYes},
		{Name: "confirm_no", Match: func(q *Request) bool { return q.Owner && q.callback(CallbackConfirmNo) }, Handle: r.handleConfirmNo},
		{Name: "broadcast_photo", Match: func(q *Request) bool { return q.Owner && q.message(kit.UpdatePhoto) }, Handle: r.handlePhoto},
		{Name: "owner_reply", Match: r.matchReply, Handle: r.handleReply},
		{Name: "owner_format", Match: func(q *Request) bool { return q.Owner && q.Update.Message != nil }, Handle: r.handleFormat},
		{Name: "forward", Match: func(q *Request) bool { return !q.Owner && q.Update.Message != nil }, Handle: r.handleForward},
	}
}

func (r *Router) ownerChat() kit.ChatTarget {
	return kit.ChatTarget{ChatID: r.config().OwnerID}
}

func (r *Router) toOwner(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.out.SendText(ctx, r.ownerChat(), text, opt)
	return err
}

func (r *Router) handleStart(ctx context.Context, q *Request) error {
	m := q.Update.Message
	text := r.config().Texts.Greeting(m.FromFirstName)
	_, err := r.out.SendText(ctx, q.Chat, text, &kit.SendOptions{ParseMode: tgui.ParseModeHTML, ReplyTo: m.ID})
	return err
}

func (r *Router) handleSendall(ctx context.Context, q *Request) error {
	texts := r.config().Texts
	replaced, err := r.coord.Begin(q.Args)
	if errors.Is(err, broadcast.ErrEmptyBody) {
		return r.toOwner(ctx, texts.SendallEmpty, nil)
	}
	if err != nil {
		return err
	}
	if replaced {
		r.log.Info("pending broadcast replaced")
	}
	kb, err := tgui.YesNo(texts.Yes, CallbackConfirmYes, texts.No, CallbackConfirmNo)
	if err != nil {
		return err
	}
	return r.toOwner(ctx, texts.AskImage, &kit.SendOptions{ReplyMarkupAdapter: kb})
}

func (r *Router) handleExport(ctx context.Context, q *Request) error {
	texts := r.config().Texts
	art, err := export.Build(ctx, r.dir, r.now())
	if err == nil {
		_, err = r.out.SendDocument(ctx, r.ownerChat(), kit.Document{Name: art.Name, Data: art.Data, Caption: texts.ExportCaption})
	}
	if err != nil {
		r.log.Warn("export failed", logx.Err(err))
		if nerr := r.toOwner(ctx, texts.Failure(err), nil); nerr != nil {
			return errors.Join(err, nerr)
		}
		return err
	}
	metrics.SetUsers(art.Count)
	return r.toOwner(ctx, texts.ExportDone, nil)
}

func (r *Router) handleConfirmYes(ctx context.Context, q *Request) error {
	texts := r.config().Texts
	if err := r.coord.ConfirmImage(); errors.Is(err, broadcast.ErrNoPending) {
		return r.toOwner(ctx, texts.NothingPending, nil)
	}
	return r.toOwner(ctx, texts.SendImage, nil)
}

func (r *Router) handleConfirmNo(ctx context.Context, q *Request) error {
	p, err := r.coord.Take()
	if errors.Is(err, broadcast.ErrNoPending) {
		return r.toOwner(ctx, r.config().Texts.NothingPending, nil)
	}
	r.startBroadcast(ctx, p.Body, "")
	return nil
}

func (r *Router) handlePhoto(ctx context.Context, q *Request) error {
	p, err := r.coord.Take()
	if errors.Is(err, broadcast.ErrNoPending) {
		return r.toOwner(ctx, r.config().Texts.NothingPending, nil)
	}
	r.startBroadcast(ctx, p.Body, q.Update.Message.PhotoID)
	return nil
}

// startBroadcast runs the fan-out and sends the report to the owner. The
// pending slot is already consumed; a failed listing is reported too.
func (r *Router) startBroadcast(ctx context.Context, body, photoID string) {
	r.spawn(ctx, "broadcast", func(ctx context.Context) {
		rep, err := r.fan.Run(ctx, body, photoID)
		if err != nil {
			r.log.Error("broadcast failed", logx.Err(err))
			_ = r.toOwner(ctx, r.config().Texts.Failure(err), nil)
			return
		}
		metrics.Broadcast(rep.WithImage, rep.Took)
		if err := r.toOwner(ctx, rep.HTML(), &kit.SendOptions{ParseMode: tgui.ParseModeHTML}); err != nil {
			r.log.Warn("broadcast report not delivered", logx.Err(err))
		}
	})
}

func (r *Router) matchReply(q *Request) bool {
	if !q.Owner || !q.message(kit.UpdateText) {
		return false
	}
	t, err := reply.Parse(q.Update.Message.Text)
	if err != nil {
		return false
	}
	q.target = t
	return true
}

func (r *Router) handleReply(ctx context.Context, q *Request) error {
	return r.replier.Deliver(ctx, r.ownerChat(), q.target)
}

func (r *Router) handleFormat(ctx context.Context, q *Request) error {
	return r.toOwner(ctx, r.config().Texts.InvalidFormat, nil)
}

// handleForward relays a user message to the owner and acknowledges the
// sender. The acknowledgment is sent even when forwarding failed.
func (r *Router) handleForward(ctx context.Context, q *Request) error {
	texts := r.config().Texts
	m := q.Update.Message
	card := r.senderCard(texts.ForwardTitle, m)
	html := &kit.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}

	var err error
	switch q.Update.Kind {
	case kit.UpdatePhoto:
		_, err = r.out.SendPhoto(ctx, r.ownerChat(), m.PhotoID, card, html)
	case kit.UpdateMedia:
		if _, err = r.out.SendText(ctx, r.ownerChat(), card, html); err == nil {
			_, err = r.out.Forward(ctx, r.ownerChat(), kit.MessageRef{ChatID: m.ChatID, MessageID: m.ID})
		}
	default:
		_, err = r.out.SendText(ctx, r.ownerChat(), card, html)
	}
	if err != nil {
		r.log.Warn("forward to owner failed", logx.Err(err))
	}

	_, aerr := r.out.SendText(ctx, q.Chat, texts.Ack, &kit.SendOptions{ReplyTo: m.ID})
	return errors.Join(err, aerr)
}

func (r *Router) senderCard(title string, m *kit.Message) string {
	username := m.FromUsername
	if username != "" {
		username = "@" + username
	}
	c := tgui.NewCard(tgui.B(title)).
		Field("Firstname", m.FromFirstName).
		Field("Lastname", m.FromLastName).
		Field("Username", username).
		CodeField("User ID", strconv.FormatInt(m.FromID, 10)).
		CodeField("Chat ID", strconv.FormatInt(m.ChatID, 10))
	if m.MediaKind != "" {
		c.Field("Media", m.MediaKind)
	}
	if m.Text != "" {
		c.Line("").Line(tgui.B("Message:")).Line(tgui.Esc(m.Text))
	}
	return c.String()
}
