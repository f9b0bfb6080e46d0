package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/directory"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Workers    int
	RatePerSec int
}

// Lister enumerates recipients. directory.Store satisfies it.
type Lister interface {
	List(ctx context.Context) ([]directory.Entry, error)
}

// Deliverer is the part of the transport a fan-out needs.
type Deliverer interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	SendPhoto(ctx context.Context, to kit.ChatTarget, photoID, caption string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Hooks observe a running fan-out. Any field may be nil.
type Hooks struct {
	Outcome     func(o Outcome)
	RateLimited func(chatID int64, retryAfter time.Duration)
}

// Fanout delivers one message to every directory entry, once each.
type Fanout struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	dir   Lister
	out   Deliverer
	log   logx.Logger
	hooks Hooks
}

func NewFanout(cfg Config, dir Lister, out Deliverer, log logx.Logger, hooks Hooks) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Fanout{dir: dir, out: out, log: log, hooks: hooks}
	f.Apply(cfg)
	return f
}

// Apply swaps pacing settings. Running fan-outs keep their snapshot.
func (f *Fanout) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	f.mu.Lock()
	f.cfg = cfg
	f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	f.mu.Unlock()
}

// Run attempts exactly one delivery per recipient and returns the tally.
// It only fails when the recipient list cannot be read; delivery failures
// are counted, never returned.
func (f *Fanout) Run(ctx context.Context, body, photoID string) (Report, error) {
	start := time.Now()
	entries, err := f.dir.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("broadcast: list recipients: %w", err)
	}

	f.mu.Lock()
	workers, lim := f.cfg.Workers, f.limiter
	f.mu.Unlock()
	if workers > len(entries) {
		workers = len(entries)
	}

	f.log.Info("broadcast started", logx.Int("total", len(entries)), logx.Int("workers", workers), logx.Bool("image", photoID != ""))

	jobs := make(chan directory.Entry)
	partial := make([]Report, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			for e := range jobs {
				partial[idx].add(f.deliver(ctx, lim, e, body, photoID))
			}
		}(i)
	}
	for _, e := range entries {
		jobs <- e
	}
	close(jobs)
	wg.Wait()

	rep := Report{Total: len(entries), WithImage: photoID != ""}
	for _, p := range partial {
		rep.Successful += p.Successful
		rep.Blocked += p.Blocked
		rep.Deleted += p.Deleted
		rep.Failed += p.Failed
	}
	rep.Took = time.Since(start)

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("ok", rep.Successful),
		logx.Int("blocked", rep.Blocked),
		logx.Int("deleted", rep.Deleted),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Took),
	}
	if rep.Failed > 0 {
		f.log.Warn("broadcast finished with failures", fields...)
	} else {
		f.log.Info("broadcast finished", fields...)
	}
	return rep, nil
}

// deliver makes the single attempt for one recipient. A panic in the
// transport counts as an "other" outcome.
func (f *Fanout) deliver(ctx context.Context, lim *rate.Limiter, e directory.Entry, body, photoID string) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("panic in broadcast delivery", logx.Int64("chat_id", e.ChatID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			o = OutcomeOther
		}
		if f.hooks.Outcome != nil {
			f.hooks.Outcome(o)
		}
	}()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return OutcomeOther
		}
	}
	to := kit.ChatTarget{ChatID: e.ChatID}
	var err error
	if photoID != "" {
		_, err = f.out.SendPhoto(ctx, to, photoID, body, nil)
	} else {
		_, err = f.out.SendText(ctx, to, body, nil)
	}
	if err == nil {
		return OutcomeSuccess
	}

	o = outcomeOf(err)
	if retry, ok := kit.RetryAfterOf(err); ok {
		f.log.Warn("broadcast delivery rate limited", logx.Int64("chat_id", e.ChatID), logx.Duration("retry_after", retry))
		if f.hooks.RateLimited != nil {
			f.hooks.RateLimited(e.ChatID, retry)
		}
	} else {
		f.log.Debug("broadcast delivery failed", logx.Int64("chat_id", e.ChatID), logx.String("outcome", string(o)), logx.Err(err))
	}
	return o
}
