package directory

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "relaybot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory migrate: %w", err)
	}
	st := &sqliteStore{db: db, log: log}
	if n, err := st.Count(context.Background()); err == nil {
		log.Info("directory loaded", logx.String("driver", "sqlite"), logx.Int("users", n))
	}
	return st, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, userID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, chat_id, seen_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET chat_id=excluded.chat_id, seen_at=excluded.seen_at`,
		userID, chatID, time.Now().UTC().UnixMilli(),
	)
	return mapClosed(err)
}

func (s *sqliteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, chat_id, seen_at FROM users ORDER BY user_id`)
	if err != nil {
		return nil, mapClosed(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.UserID, &e.ChatID, &ms); err != nil {
			return nil, err
		}
		e.SeenAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, mapClosed(err)
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func mapClosed(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return ErrClosed
	}
	return err
}
