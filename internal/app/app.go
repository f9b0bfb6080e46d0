// Package app wires the relay bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaybot/internal/broadcast"
	"relaybot/internal/config"
	"relaybot/internal/directory"
	"relaybot/internal/dispatch"
	"relaybot/internal/ingress"
	"relaybot/internal/metrics"
	"relaybot/internal/notice"
	"relaybot/internal/relay"
	"relaybot/internal/reply"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/scheduler"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram"
	logx "relaybot/pkg/logx"
)

// Transport is the Telegram side the app drives. telegram.Adapter
// satisfies it.
type Transport interface {
	kit.Adapter
	OnUnsupported(fn func(err error))
	SetWebhook(publicURL, secret string, dropPending bool) error
	DeleteWebhook(dropPending bool) error
}

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	tr      Transport
	dir     directory.Store
	console *notice.Console
	fanout  *broadcast.Fanout
	router  *relay.Router
	sched   *scheduler.Scheduler
	ingress *ingress.Server
	pool    *dispatch.Pool
	sd      *sdNotifier

	updates chan kit.Update
}

// New loads the config and connects to Telegram.
func New(cfgm *config.Manager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	tr, err := telegram.New(mapTelegramConfig(cfg, false), bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return build(cfgm, cfg, tr)
}

func build(cfgm *config.Manager, cfg *config.Config, tr Transport) (*App, error) {
	// Bootstrap with the channel sink off, then enable it once the target
	// is known so Apply does not warn about a missing chat.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Channel.Enabled = false
	logSvc, log := logx.New(bootCfg, tr)
	logSvc.SetChannelTarget(cfg.Telegram.ConsoleChannelID, cfg.Telegram.ConsoleThreadID)
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	dir, err := directory.Open(mapDirectoryConfig(cfg), log.With(logx.String("comp", "directory")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	console := notice.New(mapNoticeConfig(cfg), tr, log.With(logx.String("comp", "notice")))
	fanout := broadcast.NewFanout(mapBroadcastConfig(cfg), dir, tr, log.With(logx.String("comp", "broadcast")), broadcast.Hooks{
		Outcome: func(o broadcast.Outcome) { metrics.Delivery(string(o)) },
		RateLimited: func(_ int64, retryAfter time.Duration) {
			metrics.RateLimited("broadcast")
			console.RateLimited("broadcast", retryAfter)
		},
	})
	replier := reply.New(tr, reply.DefaultTexts(), log.With(logx.String("comp", "reply")))
	router := relay.New(mapRelayConfig(cfg), relay.Deps{
		Out:         tr,
		Directory:   dir,
		Broadcaster: fanout,
		Replier:     replier,
		Notices:     console,
	}, log.With(logx.String("comp", "relay")))

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		tr:      tr,
		dir:     dir,
		console: console,
		fanout:  fanout,
		router:  router,
		sched:   scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler"))),
		sd:      newSDNotifier(log.With(logx.String("comp", "systemd"))),
		updates: make(chan kit.Update, cfg.Dispatch.QueueSize),
	}

	tr.OnUnsupported(a.unsupported)
	a.ingress = ingress.New(mapIngressConfig(cfg), router.Handle, ingress.Hooks{
		Unsupported: a.unsupported,
		Health:      a.health,
	}, log.With(logx.String("comp", "ingress")))
	a.pool = dispatch.New(mapDispatchConfig(cfg), router.Handle, log.With(logx.String("comp", "dispatch")))

	if err := a.registerJobs(cfg); err != nil {
		_ = dir.Close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) unsupported(err error) {
	a.log.Debug("unsupported update", logx.Err(err))
	a.console.Unsupported(err.Error())
}

func (a *App) health(ctx context.Context) error {
	_, err := a.dir.Count(ctx)
	return err
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()
	cfg := a.cfg

	a.console.Start(c)
	a.router.Start(c)
	a.sched.Start(c)

	switch cfg.Telegram.Mode {
	case config.ModePolling:
		if err := a.tr.DeleteWebhook(false); err != nil {
			a.log.Warn("delete webhook failed; polling may conflict", logx.Err(err))
		}
		if err := a.tr.Start(c, a.updates); err != nil {
			return err
		}
		a.sup.Go("dispatch", func(c context.Context) error { return a.pool.Run(c, a.updates) })
	default:
		if cfg.Ingress.PublicURL != "" {
			if err := a.tr.SetWebhook(cfg.Ingress.PublicURL, cfg.Ingress.Secret, cfg.Ingress.DropPending); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			a.log.Info("webhook registered", logx.Bool("secret", cfg.Ingress.Secret != ""))
		} else {
			a.log.Warn("no public url configured; assuming the webhook is registered elsewhere")
		}
	}
	a.sup.Go("ingress", a.ingress.ListenAndServe)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.sd.watchdog)

	a.sd.ready()
	a.console.Lifecycle(fmt.Sprintf("🤖 Bot started (%s mode).", cfg.Telegram.Mode))
	a.log.Info("app started", logx.String("mode", cfg.Telegram.Mode), logx.String("directory", cfg.Directory.Driver))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()
	a.console.Lifecycle(fmt.Sprintf("🛑 Bot stopping (%s).", reason))

	// Unwind the run context first so the poller and listener stop taking
	// new work.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.step(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, a.tr.Stop)
	// Ingress and dispatch finish in-flight updates before broadcasts drain.
	step("supervisor", 12*time.Second, a.sup.Wait)
	step("broadcasts", a.cfgm.Get().DrainTimeout(), a.router.Stop)
	step("console", 2*time.Second, func(c context.Context) error { a.console.Stop(c); return nil })
	step("directory", time.Second, func(context.Context) error { return a.dir.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// step runs one shutdown step with an upper bound so one component cannot
// stall the rest. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return context.DeadlineExceeded
	}
	sctx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		return err
	case <-sctx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		return sctx.Err()
	}
}
