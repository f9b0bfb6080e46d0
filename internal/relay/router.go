// Package relay routes inbound Telegram updates between end users and the
// bot owner.
//
// Each update is matched against an ordered rule list and the first match
// handles it. Non-owner messages upsert the sender into the directory
// before any rule runs, and every callback query is answered.
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"relaybot/internal/broadcast"
	"relaybot/internal/directory"
	"relaybot/internal/metrics"
	"relaybot/internal/reply"
	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Config struct {
	OwnerID int64
	// BotUsername, when set, makes "/cmd@other_bot" plain text.
	BotUsername    string
	HandlerTimeout time.Duration
	Texts          Texts
}

// Directory is the user store the router writes to and exports from.
type Directory interface {
	Upsert(ctx context.Context, userID, chatID int64) error
	List(ctx context.Context) ([]directory.Entry, error)
}

type Broadcaster interface {
	Run(ctx context.Context, body, photoID string) (broadcast.Report, error)
}

type Replier interface {
	Deliver(ctx context.Context, owner kit.ChatTarget, t reply.Target) error
}

// Noticer receives operational notices. notice.Console satisfies it.
type Noticer interface {
	UserSeen(firstName string, userID int64)
	RateLimited(where string, retryAfter time.Duration)
	APIError(where string, err error)
}

type Deps struct {
	Out         kit.Sender
	Directory   Directory
	Coordinator *broadcast.Coordinator
	Broadcaster Broadcaster
	Replier     Replier
	Notices     Noticer
}

type Router struct {
	mu  sync.RWMutex
	cfg Config

	out     kit.Sender
	dir     Directory
	coord   *broadcast.Coordinator
	fan     Broadcaster
	replier Replier
	notices Noticer
	log     logx.Logger
	rules   []Rule
	now     func() time.Time

	bgMu sync.Mutex
	bg   *rtsup.Supervisor
}

func New(cfg Config, d Deps, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Coordinator == nil {
		d.Coordinator = broadcast.NewCoordinator()
	}
	if d.Notices == nil {
		d.Notices = nopNoticer{}
	}
	cfg.Texts = cfg.Texts.WithDefaults()
	r := &Router{
		cfg:     cfg,
		out:     d.Out,
		dir:     d.Directory,
		coord:   d.Coordinator,
		fan:     d.Broadcaster,
		replier: d.Replier,
		notices: d.Notices,
		log:     log,
		now:     time.Now,
	}
	r.rules = r.defaultRules()
	return r
}

// Apply swaps the hot-reloadable settings (owner, texts, timeout).
func (r *Router) Apply(cfg Config) {
	cfg.Texts = cfg.Texts.WithDefaults()
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Router) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Start enables background broadcasts. Without it broadcasts run inline.
func (r *Router) Start(ctx context.Context) {
	r.bgMu.Lock()
	defer r.bgMu.Unlock()
	if r.bg != nil {
		return
	}
	r.bg = rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "relay.bg"))))
}

// Stop waits for running broadcasts until ctx expires.
func (r *Router) Stop(ctx context.Context) error {
	r.bgMu.Lock()
	bg := r.bg
	r.bg = nil
	r.bgMu.Unlock()
	if bg == nil {
		return nil
	}
	err := bg.Wait(ctx)
	bg.Cancel()
	return err
}

// spawn runs fn outside the update's lifetime. fn gets a context that is
// never canceled, so a started broadcast always completes. Once Stop has
// taken the supervisor, fn runs inline.
func (r *Router) spawn(parent context.Context, name string, fn func(ctx context.Context)) {
	ctx := context.WithoutCancel(parent)
	r.bgMu.Lock()
	if bg := r.bg; bg != nil {
		// Registered under bgMu so Stop cannot start waiting in between.
		bg.Go0(name, func(context.Context) { fn(ctx) })
		r.bgMu.Unlock()
		return
	}
	r.bgMu.Unlock()
	fn(ctx)
}

// Handle routes one update to completion. It never fails: business and
// delivery errors are logged, reported and swallowed here.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	start := time.Now()
	cfg := r.config()
	req := r.newRequest(up, cfg)

	h := Chain(r.route,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cfg.HandlerTimeout),
	)
	if err := h(ctx, req); err != nil {
		r.report(req, err)
	}
	metrics.Update(string(up.Kind), req.Rule, time.Since(start))
}

func (r *Router) route(ctx context.Context, req *Request) error {
	var errs []error
	if req.Update.Callback != nil {
		if err := r.out.AnswerCallback(ctx, req.Update.Callback.ID, ""); err != nil {
			errs = append(errs, err)
		}
	}
	if !req.Owner && req.Update.Message != nil {
		if err := r.upsert(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	for _, rule := range r.rules {
		if rule.Match(req) {
			req.Rule = rule.Name
			errs = append(errs, rule.Handle(ctx, req))
			break
		}
	}
	if req.Rule == "" {
		req.Rule = "none"
	}
	return errors.Join(errs...)
}

func (r *Router) upsert(ctx context.Context, req *Request) error {
	m := req.Update.Message
	if err := r.dir.Upsert(ctx, m.FromID, m.ChatID); err != nil {
		return err
	}
	r.notices.UserSeen(m.FromFirstName, m.FromID)
	return nil
}

// report turns a handler error into log lines and console notices.
func (r *Router) report(req *Request, err error) {
	if d, ok := kit.RetryAfterOf(err); ok {
		metrics.RateLimited("relay")
		r.notices.RateLimited(req.Rule, d)
		return
	}
	var de *kit.DeliveryError
	if errors.As(err, &de) && de.Kind == kit.FailureOther {
		r.notices.APIError(req.Rule, err)
	}
}

func (r *Router) newRequest(up kit.Update, cfg Config) *Request {
	req := &Request{Update: up, FromID: up.SenderID()}
	req.Owner = cfg.OwnerID != 0 && req.FromID == cfg.OwnerID
	switch {
	case up.Message != nil:
		req.Chat = kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}
		if up.Kind == kit.UpdateText {
			req.Command, req.Args = parseCommand(up.Message.Text, cfg.BotUsername)
		}
	case up.Callback != nil:
		req.Chat = kit.ChatTarget{ChatID: up.Callback.ChatID}
		req.Payload = up.Callback.Data
	}
	return req
}

// parseCommand splits "/cmd@bot rest" into ("cmd", "rest"). Text that is
// not a command, or is addressed to another bot, yields ("", "").
func parseCommand(text, botUsername string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	word := text[1:]
	if i := strings.IndexFunc(word, unicode.IsSpace); i >= 0 {
		word, args = word[:i], strings.TrimLeftFunc(word[i:], unicode.IsSpace)
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		target := word[i+1:]
		word = word[:i]
		if botUsername != "" && !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
			return "", ""
		}
	}
	if word == "" {
		return "", ""
	}
	return strings.ToLower(word), args
}

type nopNoticer struct{}

func (nopNoticer) UserSeen(string, int64)            {}
func (nopNoticer) RateLimited(string, time.Duration) {}
func (nopNoticer) APIError(string, error)            {}
