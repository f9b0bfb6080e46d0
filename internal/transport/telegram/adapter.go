package telegram

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (tests, local bot-api server).
	APIURL string
	// Offline skips the getMe call on construction (CLI export, tests).
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates uint64
	undecodable    func(err error)
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// OnUnsupported registers a callback for polled updates Convert rejects.
func (a *Adapter) OnUnsupported(fn func(err error)) { a.undecodable = fn }

func (a *Adapter) registerHandlers() {
	h := func(c tele.Context) error {
		up, err := Convert(c.Update())
		if err != nil {
			if a.undecodable != nil {
				a.undecodable(err)
			}
			return nil
		}
		a.sendUpdate(up)
		return nil
	}
	// OnMedia is telebot's fallback for every media type, photos included.
	a.bot.Handle(tele.OnText, h)
	a.bot.Handle(tele.OnMedia, h)
	a.bot.Handle(tele.OnCallback, h)
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

// Start runs the long-poll loop until Stop or ctx cancellation.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		// Stop blocks until the poll loop acknowledges it.
		done := make(chan struct{})
		go func() {
			a.bot.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	// telebot's Start blocks until Stop; restart it if it ever returns early.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Never hold shutdown hostage to a pending getUpdates.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: &tele.Chat{ID: to.ChatID}}
	}
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

func ref(to kit.ChatTarget, m *tele.Message) kit.MessageRef {
	r := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	if m != nil {
		r.MessageID = m.ID
	}
	return r
}

// SendText splits long text and sends the parts in order. Markup is
// attached to the first part only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(to, opt)
		if i > 0 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = ref(to, msg)
		}
	}
	return first, nil
}

// SendPhoto sends a photo by file id. Captions over Telegram's limit are
// sent as a follow-up text message.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	long := runeLen(caption) > captionLimit
	p := &tele.Photo{File: tele.File{FileID: photoID}}
	if !long {
		p.Caption = caption
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, p, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	r := ref(to, msg)
	if long {
		if _, err := a.SendText(ctx, to, caption, opt); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	d := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.Name,
		Caption:  doc.Caption,
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, d, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return ref(to, msg), nil
}

func (a *Adapter) Forward(ctx context.Context, to kit.ChatTarget, from kit.MessageRef) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	src := tele.StoredMessage{MessageID: strconv.Itoa(from.MessageID), ChatID: from.ChatID}
	msg, err := a.bot.Forward(&tele.Chat{ID: to.ChatID}, src, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return ref(to, msg), nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}))
}

// SetWebhook registers publicURL with Telegram. secret is echoed back by
// Telegram in X-Telegram-Bot-Api-Secret-Token.
func (a *Adapter) SetWebhook(publicURL, secret string, dropPending bool) error {
	return classify(a.bot.SetWebhook(&tele.Webhook{
		Endpoint:    &tele.WebhookEndpoint{PublicURL: publicURL},
		SecretToken: secret,
		DropUpdates: dropPending,
	}))
}

func (a *Adapter) DeleteWebhook(dropPending bool) error {
	return classify(a.bot.RemoveWebhook(dropPending))
}
