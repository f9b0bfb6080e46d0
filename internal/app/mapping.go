package app

import (
	"relaybot/internal/broadcast"
	"relaybot/internal/config"
	"relaybot/internal/directory"
	"relaybot/internal/dispatch"
	"relaybot/internal/ingress"
	"relaybot/internal/notice"
	"relaybot/internal/relay"
	"relaybot/internal/scheduler"
	"relaybot/internal/transport/telegram"
	logx "relaybot/pkg/logx"
)

func mapTelegramConfig(cfg *config.Config, offline bool) telegram.Config {
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
		APIURL:      cfg.Telegram.APIURL,
		Offline:     offline,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Channel: logx.ChannelConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.ConsoleChannelID != 0,
			ThreadID:   cfg.Telegram.ConsoleThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapRelayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		OwnerID:        cfg.Telegram.OwnerID,
		BotUsername:    cfg.Telegram.BotUsername,
		HandlerTimeout: cfg.HandlerTimeout(),
		Texts:          cfg.Texts,
	}
}

func mapNoticeConfig(cfg *config.Config) notice.Config {
	return notice.Config{
		ChatID:        cfg.Telegram.ConsoleChannelID,
		ThreadID:      cfg.Telegram.ConsoleThreadID,
		AnnounceUsers: cfg.AnnounceUsers(),
		QueueSize:     cfg.Console.QueueSize,
		RatePerSec:    cfg.Console.RatePerSec,
		RetryMax:      cfg.Console.RetryMax,
		DedupWindow:   cfg.DedupWindow(),
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{Workers: cfg.Broadcast.Workers, RatePerSec: cfg.Broadcast.RatePerSec}
}

func mapDirectoryConfig(cfg *config.Config) directory.Config {
	return directory.Config{
		Driver:      cfg.Directory.Driver,
		Path:        cfg.Directory.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{Workers: cfg.Dispatch.Workers, QueueSize: cfg.Dispatch.QueueSize}
}

func mapIngressConfig(cfg *config.Config) ingress.Config {
	return ingress.Config{
		Listen:     cfg.Ingress.Listen,
		Path:       cfg.Ingress.Path,
		Secret:     cfg.Ingress.Secret,
		MaxBody:    cfg.Ingress.MaxBody,
		HealthOnly: cfg.Telegram.Mode != config.ModeWebhook,
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Scheduler.Timezone}
}
