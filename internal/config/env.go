package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads .env files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg. Set variables override
// the file; empty ones are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := get(k); ok {
				*dst = v
				return
			}
		}
	}
	i64 := func(dst *int64, key string) {
		if v, ok := get(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	num := func(dst *int, key string) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(dst **bool, key string) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = &b
		}
	}

	str(&cfg.Telegram.Token, "TOKEN", "RELAYBOT_TOKEN")
	i64(&cfg.Telegram.OwnerID, "OWNER_ID")
	str(&cfg.Ingress.PublicURL, "WEBHOOK_URL")
	i64(&cfg.Telegram.ConsoleChannelID, "CONSOLE_CHANNEL_ID")
	num(&cfg.Telegram.ConsoleThreadID, "RELAYBOT_CONSOLE_THREAD_ID")
	str(&cfg.Telegram.BotUsername, "RELAYBOT_BOT_USERNAME")
	str(&cfg.Telegram.Mode, "RELAYBOT_MODE")
	str(&cfg.Telegram.APIURL, "RELAYBOT_API_URL")

	if v, ok := get("PORT"); ok {
		cfg.Ingress.Listen = ":" + v
	}
	str(&cfg.Ingress.Listen, "RELAYBOT_LISTEN")
	str(&cfg.Ingress.Path, "RELAYBOT_WEBHOOK_PATH")
	str(&cfg.Ingress.Secret, "RELAYBOT_WEBHOOK_SECRET")

	str(&cfg.Directory.Driver, "RELAYBOT_DIRECTORY_DRIVER")
	str(&cfg.Directory.Path, "RELAYBOT_DIRECTORY_PATH")
	str(&cfg.Export.Schedule, "RELAYBOT_EXPORT_SCHEDULE")
	flag(&cfg.Console.AnnounceUsers, "RELAYBOT_ANNOUNCE_USERS")
	str(&cfg.Logging.Level, "RELAYBOT_LOG_LEVEL")

	return errors.Join(errs...)
}
