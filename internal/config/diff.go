package config

import (
	"reflect"
	"sort"

	logx "relaybot/pkg/logx"
)

// Restart-only sections cannot be applied to a running process.
var restartOnly = map[string]bool{"telegram.transport": true, "ingress": true, "directory": true, "dispatch": true}

// SummarizeConfigChange returns the changed sections, safe fields for
// logging (never the token or webhook secret), and the subset of changed
// sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := *oldCfg, *newCfg

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if o.Telegram.OwnerID != n.Telegram.OwnerID || o.Telegram.BotUsername != n.Telegram.BotUsername {
		mark("telegram",
			logx.Bool("telegram.owner_changed", o.Telegram.OwnerID != n.Telegram.OwnerID),
			logx.String("telegram.bot_username", n.Telegram.BotUsername),
		)
	}
	if o.Telegram.Token != n.Telegram.Token || o.Telegram.Mode != n.Telegram.Mode ||
		o.Telegram.PollTimeout != n.Telegram.PollTimeout || o.Telegram.APIURL != n.Telegram.APIURL {
		mark("telegram.transport",
			logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
			logx.String("telegram.mode", n.Telegram.Mode),
		)
	}
	if o.Telegram.ConsoleChannelID != n.Telegram.ConsoleChannelID || o.Telegram.ConsoleThreadID != n.Telegram.ConsoleThreadID ||
		!reflect.DeepEqual(o.Console, n.Console) {
		mark("console",
			logx.Bool("console.channel_set", n.Telegram.ConsoleChannelID != 0),
			logx.Bool("console.announce_users", n.AnnounceUsers()),
			logx.Int("console.rate_per_sec", n.Console.RatePerSec),
		)
	}
	if o.Ingress != n.Ingress {
		mark("ingress",
			logx.String("ingress.listen", n.Ingress.Listen),
			logx.String("ingress.path", n.Ingress.Path),
			logx.Bool("ingress.public_url_set", n.Ingress.PublicURL != ""),
			logx.Bool("ingress.secret_set", n.Ingress.Secret != ""),
		)
	}
	if o.Dispatch.Workers != n.Dispatch.Workers || o.Dispatch.QueueSize != n.Dispatch.QueueSize {
		mark("dispatch", logx.Int("dispatch.workers", n.Dispatch.Workers), logx.Int("dispatch.queue_size", n.Dispatch.QueueSize))
	}
	if o.Dispatch.HandlerTimeout != n.Dispatch.HandlerTimeout {
		mark("dispatch.handler_timeout", logx.String("dispatch.handler_timeout", n.Dispatch.HandlerTimeout))
	}
	if o.Broadcast != n.Broadcast {
		mark("broadcast", logx.Int("broadcast.workers", n.Broadcast.Workers), logx.Int("broadcast.rate_per_sec", n.Broadcast.RatePerSec))
	}
	if o.Directory != n.Directory {
		mark("directory", logx.String("directory.driver", n.Directory.Driver), logx.Bool("directory.path_set", n.Directory.Path != ""))
	}
	if o.Export != n.Export || o.Scheduler != n.Scheduler {
		mark("scheduler",
			logx.String("export.schedule", n.Export.Schedule),
			logx.String("scheduler.timezone", n.Scheduler.Timezone),
		)
	}
	if o.Logging != n.Logging {
		mark("logging",
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(o.Texts, n.Texts) {
		mark("texts")
	}

	sort.Strings(changed)
	var restart []string
	for _, s := range changed {
		if restartOnly[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
