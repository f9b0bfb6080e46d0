package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "relaybot/pkg/logx"
)

func backends(t *testing.T) map[string]Config {
	dir := t.TempDir()
	return map[string]Config{
		"memory": {Driver: "memory"},
		"file":   {Driver: "file", Path: filepath.Join(dir, "file", "relaybot.db")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "relaybot.db")},
	}
}

func TestUpsertListCount(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			for _, p := range [][2]int64{{30, 300}, {10, 100}, {20, 200}, {10, 101}} {
				if err := st.Upsert(ctx, p[0], p[1]); err != nil {
					t.Fatalf("Upsert: %v", err)
				}
			}
			n, err := st.Count(ctx)
			if err != nil || n != 3 {
				t.Fatalf("Count = %d, %v", n, err)
			}
			list, err := st.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []Entry{{UserID: 10, ChatID: 101}, {UserID: 20, ChatID: 200}, {UserID: 30, ChatID: 300}}
			if len(list) != len(want) {
				t.Fatalf("List len = %d", len(list))
			}
			for i := range want {
				if list[i].UserID != want[i].UserID || list[i].ChatID != want[i].ChatID {
					t.Fatalf("entry %d = %+v, want %+v", i, list[i], want[i])
				}
				if list[i].SeenAt.IsZero() {
					t.Fatalf("entry %d has no SeenAt", i)
				}
			}
		})
	}
}

func TestListIsACopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	_ = st.Upsert(ctx, 1, 1)
	list, _ := st.List(ctx)
	_ = st.Upsert(ctx, 2, 2)
	if len(list) != 1 {
		t.Fatalf("snapshot changed after upsert: %d", len(list))
	}
}

func TestPersistentBackendsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range backends(t) {
		if name == "memory" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			_ = st.Upsert(ctx, 7, 70)
			_ = st.Upsert(ctx, 8, 80)
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st2, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st2.Close()
			n, err := st2.Count(ctx)
			if err != nil || n != 2 {
				t.Fatalf("Count after reopen = %d, %v", n, err)
			}
		})
	}
}

func TestFileJournalReplaySkipsTornLine(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "dir.db")}
	journal := filepath.Join(dir, "dir.users.journal.jsonl")
	data := `{"user_id":1,"chat_id":11,"seen_at":"2024-01-01T00:00:00Z"}
{"user_id":2,"chat_id":22,"seen_at":"2024-01-01T00:00:00Z"}
{"user_id":3,"chat_`
	if err := os.WriteFile(journal, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	n, _ := st.Count(context.Background())
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

// tornJournal writes half of the next record and then fails.
type tornJournal struct {
	*os.File
	fail bool
}

func (j *tornJournal) Write(p []byte) (int, error) {
	if j.fail {
		j.fail = false
		n, _ := j.File.Write(p[:len(p)/2])
		return n, errors.New("disk full")
	}
	return j.File.Write(p)
}

func TestFileJournalFailedWriteDoesNotCorruptNext(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "dir.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	fs := st.(*fileStore)
	ctx := context.Background()

	if err := st.Upsert(ctx, 1, 11); err != nil {
		t.Fatalf("Upsert 1: %v", err)
	}
	fs.journal = &tornJournal{File: fs.journal.(*os.File), fail: true}
	if err := st.Upsert(ctx, 2, 22); err == nil {
		t.Fatal("expected write error")
	}
	if err := st.Upsert(ctx, 3, 33); err != nil {
		t.Fatalf("Upsert 3: %v", err)
	}

	entries := map[int64]Entry{}
	skipped, err := replayJournal(filepath.Join(dir, "dir.users.journal.jsonl"), entries)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if skipped != 0 || len(entries) != 2 || entries[1].ChatID != 11 || entries[3].ChatID != 33 {
		t.Fatalf("skipped=%d entries=%+v", skipped, entries)
	}
}

func TestFileJournalAppendAfterTornLine(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "dir.db")}
	journal := filepath.Join(dir, "dir.users.journal.jsonl")
	if err := os.WriteFile(journal, []byte(`{"user_id":1,"chat_id":11,"seen_at":"2024-01-01T00:00:00Z"}
{"user_id":3,"chat_`), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.Upsert(context.Background(), 4, 44); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	entries := map[int64]Entry{}
	skipped, err := replayJournal(journal, entries)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if skipped != 1 || entries[4].ChatID != 44 {
		t.Fatalf("skipped=%d entries=%+v", skipped, entries)
	}
}

func TestClosedStore(t *testing.T) {
	st := NewMemory()
	_ = st.Close()
	if err := st.Upsert(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
