// Package notice sends operational notices to the bot's console channel.
//
// Notices are write-only and best-effort: Notify never blocks, duplicates
// inside the dedup window are suppressed, delivery is paced by a token
// bucket and a full queue drops the notice.
package notice

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notice: console channel not configured")
	ErrQueueFull = errors.New("notice: queue full")
	ErrStopped   = errors.New("notice: stopped")
)

type Config struct {
	ChatID        int64
	ThreadID      int
	AnnounceUsers bool
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	DedupWindow   time.Duration
}

// TextSender is the transport subset the console needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Console struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	out     TextSender
	log     logx.Logger

	queue chan string
	sup   *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[uint64]time.Time
	now   func() time.Time
}

func New(cfg Config, out TextSender, log logx.Logger) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{out: out, log: log, dedup: map[uint64]time.Time{}, now: time.Now}
	c.applyLocked(cfg)
	return c
}

func (c *Console) Apply(cfg Config) {
	c.mu.Lock()
	c.applyLocked(cfg)
	c.mu.Unlock()
}

func (c *Console) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	c.cfg = cfg
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (c *Console) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ChatID != 0
}

func (c *Console) AnnounceUsers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ChatID != 0 && c.cfg.AnnounceUsers
}

// Start launches the delivery worker. It is a no-op when already running.
// The worker outlives ctx cancellation so shutdown notices still go out;
// only Stop ends it.
func (c *Console) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue != nil {
		return
	}
	c.queue = make(chan string, c.cfg.QueueSize)
	c.sup = rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(c.log.With(logx.String("comp", "notice"))))
	q := c.queue
	c.sup.GoRestart("console.worker", func(ctx context.Context) error {
		c.worker(ctx, q)
		return ctx.Err()
	}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
}

// Stop closes the queue and drains it until ctx expires, then cancels any
// send still in flight.
func (c *Console) Stop(ctx context.Context) {
	c.mu.Lock()
	q, sup := c.queue, c.sup
	c.queue, c.sup = nil, nil
	c.mu.Unlock()
	if q == nil {
		return
	}
	close(q)
	// The worker exits once the closed queue is drained.
	done := make(chan struct{})
	go func() {
		_ = sup.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	sup.Cancel()
}

// Notify queues text for the console channel.
func (c *Console) Notify(text string) (err error) {
	c.mu.Lock()
	chatID, window, q := c.cfg.ChatID, c.cfg.DedupWindow, c.queue
	c.mu.Unlock()

	if chatID == 0 {
		return ErrDisabled
	}
	if q == nil {
		return ErrStopped
	}
	if window > 0 && !c.dedupAllow(text, window) {
		return nil
	}
	defer func() {
		// Stop may close the queue between the snapshot and the send.
		if recover() != nil {
			err = ErrStopped
		}
	}()
	select {
	case q <- text:
		return nil
	default:
		c.log.Debug("console notice dropped", logx.String("reason", "queue full"))
		return ErrQueueFull
	}
}

func (c *Console) worker(ctx context.Context, q <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-q:
			if !ok {
				return
			}
			c.send(ctx, text)
		}
	}
}

func (c *Console) send(ctx context.Context, text string) {
	c.mu.Lock()
	cfg, lim := c.cfg, c.limiter
	c.mu.Unlock()

	to := kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := c.out.SendText(sctx, to, text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			return
		}
		wait := time.Duration(attempt+1) * 500 * time.Millisecond
		if d, ok := kit.RetryAfterOf(err); ok && d > 0 {
			wait = d
		}
		c.log.Debug("console notice failed", logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt == cfg.RetryMax {
			return
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Console) dedupAllow(text string, window time.Duration) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	key := h.Sum64()
	now := c.now()

	c.dmu.Lock()
	defer c.dmu.Unlock()
	if until, ok := c.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range c.dedup {
		if !now.Before(until) {
			delete(c.dedup, k)
		}
	}
	c.dedup[key] = now.Add(window)
	return true
}

// ---- notice texts ----

func (c *Console) UserSeen(firstName string, userID int64) {
	if !c.AnnounceUsers() {
		return
	}
	_ = c.Notify(fmt.Sprintf("User %s (ID: %d) Getting Messages.", firstName, userID))
}

func (c *Console) RateLimited(where string, retryAfter time.Duration) {
	_ = c.Notify(fmt.Sprintf("Rate limit exceeded (%s). Telegram asks to wait %s.", where, retryAfter))
}

func (c *Console) APIError(where string, err error) {
	_ = c.Notify(fmt.Sprintf("Telegram API error (%s): %v", where, err))
}

func (c *Console) Unsupported(reason string) {
	_ = c.Notify("Received unsupported update: " + reason)
}

func (c *Console) Lifecycle(text string) { _ = c.Notify(text) }
