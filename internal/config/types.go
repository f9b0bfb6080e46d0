package config

import "relaybot/internal/relay"

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// Directory drivers. Memory loses every user on restart and is meant for
// tests and throwaway runs.
const (
	DirectorySQLite = "sqlite"
	DirectoryFile   = "file"
	DirectoryMemory = "memory"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Ingress   IngressConfig   `json:"ingress"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Console   ConsoleConfig   `json:"console"`
	Directory DirectoryConfig `json:"directory"`
	Export    ExportConfig    `json:"export"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`

	// Texts overrides user- and owner-facing strings. Omitted keys keep
	// their defaults.
	Texts relay.Texts `json:"texts"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	OwnerID int64  `json:"owner_id"`
	// BotUsername (without "@") lets the router ignore "/cmd@other_bot".
	BotUsername      string `json:"bot_username,omitempty"`
	ConsoleChannelID int64  `json:"console_channel_id,omitempty"`
	ConsoleThreadID  int    `json:"console_thread_id,omitempty"`
	// Mode is "webhook" (default) or "polling".
	Mode string `json:"mode,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	APIURL      string `json:"api_url,omitempty"`
}

// IngressConfig is the HTTP listener. It serves /healthz and /metrics in
// both modes, and the webhook in webhook mode.
type IngressConfig struct {
	Listen string `json:"listen"`
	Path   string `json:"path,omitempty"`
	// PublicURL is what Telegram posts to; registered on start when set.
	PublicURL   string `json:"public_url,omitempty"`
	Secret      string `json:"secret,omitempty"`
	DropPending bool   `json:"drop_pending,omitempty"`
	MaxBody     int64  `json:"max_body,omitempty"`
}

type DispatchConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// HandlerTimeout bounds one update (not the broadcast it may start).
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// DrainTimeout is how long shutdown waits for a running broadcast.
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

type ConsoleConfig struct {
	// AnnounceUsers posts a notice for every user message; nil means true.
	AnnounceUsers *bool  `json:"announce_users,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// DirectoryConfig selects the user store.
//
//	"directory": { "driver": "sqlite", "path": "./relaybot.db" }
type DirectoryConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type ExportConfig struct {
	// Schedule sends the export to the owner periodically (cron, "24h",
	// or "HH:MM" interval). Empty disables it.
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors records at or above MinLevel to the console
// channel.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
