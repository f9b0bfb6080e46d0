package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationField describes one duration-valued setting. An empty or zero
// value falls back to def; max bounds what Telegram or the runtime accepts.
type durationField struct {
	path string
	raw  func(c *Config) string
	def  time.Duration
	max  time.Duration
}

var durationFields = []durationField{
	// getUpdates caps long polling at 50s.
	{"telegram.poll_timeout", func(c *Config) string { return c.Telegram.PollTimeout }, 10 * time.Second, 50 * time.Second},
	{"dispatch.handler_timeout", func(c *Config) string { return c.Dispatch.HandlerTimeout }, 30 * time.Second, 10 * time.Minute},
	{"broadcast.drain_timeout", func(c *Config) string { return c.Broadcast.DrainTimeout }, 2 * time.Minute, time.Hour},
	{"console.dedup_window", func(c *Config) string { return c.Console.DedupWindow }, 0, 24 * time.Hour},
	{"directory.busy_timeout", func(c *Config) string { return c.Directory.BusyTimeout }, 5 * time.Second, time.Minute},
	{"export.timeout", func(c *Config) string { return c.Export.Timeout }, time.Minute, time.Hour},
}

// parseDuration accepts Go durations ("90s", "2m") and bare integers as
// seconds, which is what env vars usually carry.
func parseDuration(f durationField, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return f.def, nil
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", f.path, raw)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", f.path, s)
	case f.max > 0 && d > f.max:
		return 0, fmt.Errorf("%s: %s exceeds the maximum of %s", f.path, d, f.max)
	case d == 0:
		return f.def, nil
	}
	return d, nil
}

func (c *Config) validateDurations() []error {
	var errs []error
	for _, f := range durationFields {
		if _, err := parseDuration(f, f.raw(c)); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// duration returns the parsed value of a validated field.
func (c *Config) duration(path string) time.Duration {
	for _, f := range durationFields {
		if f.path == path {
			d, _ := parseDuration(f, f.raw(c))
			return d
		}
	}
	panic("config: unknown duration field " + path)
}
