// Package reply turns an owner message of the form "<user id> <text>"
// into a delivery to that user.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

var ErrInvalidFormat = errors.New("reply: expected \"<user id> <message>\"")

type Target struct {
	UserID int64
	Body   string
}

// Parse splits on the first run of whitespace. The id must be a strictly
// positive integer and the body must be non-empty.
func Parse(text string) (Target, error) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return Target{}, ErrInvalidFormat
	}
	head := text[:i]
	body := strings.TrimLeftFunc(text[i:], unicode.IsSpace)
	if strings.TrimSpace(body) == "" {
		return Target{}, ErrInvalidFormat
	}
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return Target{}, ErrInvalidFormat
	}
	return Target{UserID: id, Body: body}, nil
}

// Texts are the owner- and user-facing strings the resolver sends.
type Texts struct {
	Prefix string // prepended to the body delivered to the user
	Sent   string // "%d" is the user id
	Failed string // "%d" user id, "%v" error
}

func DefaultTexts() Texts {
	return Texts{
		Prefix: "👤 Owner Said:\n",
		Sent:   "✅ Your message to %d has been sent.",
		Failed: "❌ Failed to send message to user %d: %v",
	}
}

type Resolver struct {
	out   kit.Sender
	log   logx.Logger
	texts Texts
}

func New(out kit.Sender, texts Texts, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{out: out, texts: texts, log: log}
}

// Deliver sends t.Body to the user and reports the result to owner. The
// returned error is the delivery error, already reported to the owner.
func (r *Resolver) Deliver(ctx context.Context, owner kit.ChatTarget, t Target) error {
	// Telegram private chat ids equal user ids.
	_, err := r.out.SendText(ctx, kit.ChatTarget{ChatID: t.UserID}, r.texts.Prefix+t.Body, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		r.log.Warn("owner reply failed", logx.Int64("user_id", t.UserID), logx.String("kind", string(kit.KindOf(err))), logx.Err(err))
		if _, nerr := r.out.SendText(ctx, owner, fmt.Sprintf(r.texts.Failed, t.UserID, err), nil); nerr != nil {
			r.log.Warn("owner notice failed", logx.Err(nerr))
		}
		return err
	}
	r.log.Debug("owner reply delivered", logx.Int64("user_id", t.UserID))
	if _, nerr := r.out.SendText(ctx, owner, fmt.Sprintf(r.texts.Sent, t.UserID), nil); nerr != nil {
		r.log.Warn("owner notice failed", logx.Err(nerr))
	}
	return nil
}
