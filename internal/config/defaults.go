package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ApplyDefaults fills zero values. It is idempotent.
func (c *Config) ApplyDefaults() {
	c.Telegram.Mode = strings.ToLower(strings.TrimSpace(c.Telegram.Mode))
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = ModeWebhook
	}
	c.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.Telegram.BotUsername), "@")
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = "10s"
	}

	if c.Ingress.Listen == "" {
		c.Ingress.Listen = ":5000"
	}
	if c.Ingress.Path == "" {
		c.Ingress.Path = "/"
	}
	if c.Ingress.MaxBody <= 0 {
		c.Ingress.MaxBody = 1 << 20
	}

	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = 64
	}
	if c.Dispatch.HandlerTimeout == "" {
		c.Dispatch.HandlerTimeout = "30s"
	}

	if c.Broadcast.Workers <= 0 {
		c.Broadcast.Workers = 8
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 25
	}
	if c.Broadcast.DrainTimeout == "" {
		c.Broadcast.DrainTimeout = "2m"
	}

	if c.Console.AnnounceUsers == nil {
		on := true
		c.Console.AnnounceUsers = &on
	}
	if c.Console.QueueSize <= 0 {
		c.Console.QueueSize = 256
	}
	if c.Console.RatePerSec <= 0 {
		c.Console.RatePerSec = 1
	}
	if c.Console.RetryMax <= 0 {
		c.Console.RetryMax = 3
	}
	if c.Console.DedupWindow == "" {
		c.Console.DedupWindow = "1m"
	}

	c.Directory.Driver = strings.ToLower(strings.TrimSpace(c.Directory.Driver))
	if c.Directory.Driver == "" {
		c.Directory.Driver = DirectorySQLite
	}
	if strings.TrimSpace(c.Directory.Path) == "" {
		switch c.Directory.Driver {
		case DirectorySQLite:
			c.Directory.Path = "data/relaybot.db"
		case DirectoryFile:
			c.Directory.Path = "data/users.jsonl"
		}
	}
	if c.Directory.BusyTimeout == "" {
		c.Directory.BusyTimeout = "5s"
	}

	if c.Export.Timeout == "" {
		c.Export.Timeout = "1m"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.Console && !c.Logging.File.Enabled {
		c.Logging.Console = true
	}
	if c.Logging.Telegram.MinLevel == "" {
		c.Logging.Telegram.MinLevel = "warn"
	}
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = 1
	}

	c.Texts = c.Texts.WithDefaults()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add("telegram.token is required (or TOKEN)")
	}
	if c.Telegram.OwnerID <= 0 {
		add("telegram.owner_id must be a positive user id (or OWNER_ID)")
	}
	switch c.Telegram.Mode {
	case ModeWebhook, ModePolling:
	default:
		add("telegram.mode must be %q or %q, got %q", ModeWebhook, ModePolling, c.Telegram.Mode)
	}
	if c.Telegram.ConsoleThreadID < 0 {
		add("telegram.console_thread_id must be >= 0")
	}
	if c.Ingress.PublicURL != "" && !strings.HasPrefix(c.Ingress.PublicURL, "https://") {
		add("ingress.public_url must be https")
	}
	if !strings.HasPrefix(c.Ingress.Path, "/") {
		add("ingress.path must start with /")
	}

	switch c.Directory.Driver {
	case DirectoryMemory:
	case DirectoryFile, DirectorySQLite:
		if strings.TrimSpace(c.Directory.Path) == "" {
			add("directory.path is required for driver %q", c.Directory.Driver)
		}
	default:
		add("directory.driver must be memory, file or sqlite, got %q", c.Directory.Driver)
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}
	for _, lvl := range []struct{ path, v string }{
		{"logging.level", c.Logging.Level},
		{"logging.telegram.min_level", c.Logging.Telegram.MinLevel},
	} {
		switch strings.ToLower(lvl.v) {
		case "debug", "info", "warn", "warning", "error":
		default:
			add("%s: unknown level %q", lvl.path, lvl.v)
		}
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path is required when file logging is enabled")
	}

	errs = append(errs, c.validateDurations()...)
	if err := c.Texts.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) PollTimeout() time.Duration { return c.duration("telegram.poll_timeout") }

func (c *Config) HandlerTimeout() time.Duration { return c.duration("dispatch.handler_timeout") }

func (c *Config) DrainTimeout() time.Duration { return c.duration("broadcast.drain_timeout") }

func (c *Config) AnnounceUsers() bool {
	return c.Console.AnnounceUsers == nil || *c.Console.AnnounceUsers
}

func (c *Config) DedupWindow() time.Duration { return c.duration("console.dedup_window") }

func (c *Config) BusyTimeout() time.Duration { return c.duration("directory.busy_timeout") }

func (c *Config) ExportTimeout() time.Duration { return c.duration("export.timeout") }
