package app

import (
	"context"
	"strings"

	"relaybot/internal/config"
	logx "relaybot/pkg/logx"
)

// reloadLoop applies published configs until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig hot-applies the reloadable sections. Transport, listener,
// storage and dispatch settings keep their startup values.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	// Target first so Apply does not warn when the channel sink is enabled.
	a.logs.SetChannelTarget(next.Telegram.ConsoleChannelID, next.Telegram.ConsoleThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.router.Apply(mapRelayConfig(next))
	a.console.Apply(mapNoticeConfig(next))
	a.fanout.Apply(mapBroadcastConfig(next))
	a.sched.Apply(mapSchedulerConfig(next))
	if prev == nil || prev.Export != next.Export || prev.Telegram.OwnerID != next.Telegram.OwnerID ||
		prev.Texts.ExportCaption != next.Texts.ExportCaption {
		if err := a.syncExportJob(next); err != nil {
			a.log.Warn("scheduled export not updated", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
