// Package dispatch runs polled updates through a fixed set of workers.
//
// Updates are sharded by chat id, so one chat is always handled by the same
// worker (in arrival order) while different chats proceed concurrently.
package dispatch

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Handler func(ctx context.Context, up kit.Update)

type Config struct {
	Workers   int
	QueueSize int // per worker
}

type Pool struct {
	cfg    Config
	handle Handler
	log    logx.Logger
}

func New(cfg Config, handle Handler, log logx.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pool{cfg: cfg, handle: handle, log: log}
}

func shard(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

// Run consumes updates until ctx is done or updates is closed, then drains
// what is already queued (bounded by a short grace period).
func (p *Pool) Run(ctx context.Context, updates <-chan kit.Update) error {
	// Workers outlive ctx so queued updates still drain on shutdown.
	hctx := context.WithoutCancel(ctx)
	sup := rtsup.New(hctx,
		rtsup.WithLogger(p.log.With(logx.String("comp", "dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	queues := make([]chan kit.Update, p.cfg.Workers)
	for i := range queues {
		q := make(chan kit.Update, p.cfg.QueueSize)
		queues[i] = q
		idx := i
		sup.GoRestart("dispatch.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-q:
					if !ok {
						return nil
					}
					p.safeHandle(hctx, idx, up)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	p.log.Info("dispatcher started", logx.Int("workers", p.cfg.Workers), logx.Int("queue", p.cfg.QueueSize))

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil {
			p.log.Warn("dispatcher drain incomplete", logx.Err(err))
		}
		sup.Cancel()
		p.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			q := queues[shard(up.ChatID(), len(queues))]
			select {
			case q <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// safeHandle keeps the worker alive if a handler panics.
func (p *Pool) safeHandle(ctx context.Context, worker int, up kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in update handler",
				logx.Int("worker", worker),
				logx.Int64("chat_id", up.ChatID()),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	p.handle(ctx, up)
}
