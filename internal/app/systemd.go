package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "relaybot/pkg/logx"
)

// sdNotifier reports readiness and liveness to systemd. Outside a
// Type=notify unit every call is a no-op.
type sdNotifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
	// watchdogInterval reports WATCHDOG_USEC; zero disables pinging.
	watchdogInterval func() (time.Duration, error)
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	return &sdNotifier{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		watchdogInterval: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *sdNotifier) send(state string) {
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *sdNotifier) ready()    { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) stopping() { n.send(daemon.SdNotifyStopping) }

// watchdog pings at half the configured interval until ctx is done.
func (n *sdNotifier) watchdog(ctx context.Context) {
	interval, err := n.watchdogInterval()
	if err != nil {
		n.log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
