package directory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "relaybot/pkg/logx"
)

// compactEvery is the number of journal appends between compactions.
const compactEvery = 1000

// fileStore keeps the directory in memory and persists it as:
//   - <prefix>.users.snapshot.json (compacted map)
//   - <prefix>.users.journal.jsonl (append-only upserts)
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	entries  map[int64]Entry
	snapPath string
	journal  journalFile
	writes   int
}

// journalFile is the slice of *os.File the store uses.
type journalFile interface {
	io.WriteSeeker
	Truncate(size int64) error
	Close() error
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".users.snapshot.json"
	journalPath := prefix + ".users.journal.jsonl"

	entries := map[int64]Entry{}
	if err := loadSnapshot(snapPath, entries); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	skipped, err := replayJournal(journalPath, entries)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped corrupt directory journal lines", logx.Int("count", skipped), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := terminateJournal(jf); err != nil {
		_ = jf.Close()
		return nil, err
	}
	log.Info("directory loaded", logx.String("driver", "file"), logx.Int("users", len(entries)))
	return &fileStore{log: log, entries: entries, snapPath: snapPath, journal: jf}, nil
}

func (s *fileStore) Upsert(_ context.Context, userID, chatID int64) error {
	e := Entry{UserID: userID, ChatID: chatID, SeenAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := s.appendLocked(e); err != nil {
		return err
	}
	s.entries[userID] = e
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("directory compact failed", logx.Err(err))
		}
	}
	return nil
}

// appendLocked writes one journal line. A failed write is cut back to the
// previous end so a partial record never merges with the next one.
func (s *fileStore) appendLocked(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	off, err := s.journal.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(line); err != nil {
		if terr := s.journal.Truncate(off); terr != nil {
			s.log.Warn("directory journal not rolled back", logx.Int64("offset", off), logx.Err(terr))
		} else {
			_, _ = s.journal.Seek(off, io.SeekStart)
		}
		return err
	}
	return nil
}

func (s *fileStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return sortedEntries(s.entries), nil
}

func (s *fileStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	return len(s.entries), nil
}

// Close compacts the journal into the snapshot and releases the file.
func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return err
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(sortedEntries(s.entries)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

// terminateJournal ends a torn final line left by a crash so the next
// append starts on its own line.
func terminateJournal(f *os.File) error {
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

func loadSnapshot(path string, out map[int64]Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var list []Entry
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, e := range list {
		out[e.UserID] = e
	}
	return nil
}

// replayJournal applies journal records in order and returns how many
// lines could not be decoded (a torn final write after a crash).
func replayJournal(path string, out map[int64]Entry) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	skipped := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.UserID == 0 {
			skipped++
			continue
		}
		out[e.UserID] = e
	}
	return skipped, sc.Err()
}
