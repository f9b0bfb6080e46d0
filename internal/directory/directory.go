// Package directory persists the userId -> chatId mapping of everyone who
// has messaged the bot. Entries are upserted on sight and never deleted.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "relaybot/pkg/logx"
)

var ErrClosed = errors.New("directory closed")

// Config selects the backend.
//
// Driver values:
//   - "file": JSON Lines journal + snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory" (or empty): process-local, lost on restart; logged as a warning
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

type Entry struct {
	UserID int64     `json:"user_id"`
	ChatID int64     `json:"chat_id"`
	SeenAt time.Time `json:"seen_at"`
}

// Store is the User Directory. List returns a point-in-time copy.
type Store interface {
	Upsert(ctx context.Context, userID, chatID int64) error
	List(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		log.Warn("directory driver is memory; users are lost on restart")
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
