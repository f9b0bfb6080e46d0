package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "relaybot/pkg/logx"
)

// Manager owns the live config. The file (JSON or YAML) is optional;
// environment overrides are applied on every parse, so a deployment can
// run on env vars alone.
type Manager struct {
	path   string
	lookup func(string) (string, bool)

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	// subsMu is held while sending so Unsubscribe never closes a channel
	// mid-send.
	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: strings.TrimSpace(path), lookup: os.LookupEnv, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetEnv replaces the environment lookup (tests).
func (m *Manager) SetEnv(lookup func(string) (string, bool)) { m.lookup = lookup }

func (m *Manager) Path() string { return m.path }

// Parse reads, overrides, defaults and validates without committing.
func (m *Manager) Parse() (*Config, error) {
	var cfg Config
	if m.path != "" {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		if err := decodeStrict(m.path, b, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", m.path, err)
		}
	}
	if err := ApplyEnv(&cfg, m.lookup); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers the newest config, dropping one stale item from a full
// subscriber buffer.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Reload parses the file again and publishes it when the content changed.
// It reports whether a new config was published.
func (m *Manager) Reload() (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	m.Commit(cfg)
	m.publish(cfg)
	return true, nil
}

const (
	watchDebounce    = 250 * time.Millisecond
	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// Watch reloads on file changes until ctx is done. The fsnotify watcher is
// recreated with jittered backoff when it breaks. A rejected file leaves
// the last good config in place.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			changed, err := m.Reload()
			switch {
			case err != nil:
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case changed:
				m.log.Debug("config published", logx.String("path", m.path))
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	bo := backoff{cur: watchBackoffBase, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch init failed", logx.String("dir", dir), logx.Err(err))
			if !bo.sleep(ctx) {
				return nil
			}
			continue
		}
		bo.reset()
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		m.watchLoop(ctx, w, file, debounce)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		if !bo.sleep(ctx) {
			return nil
		}
	}
	return nil
}

// watchLoop returns when ctx is done or the watcher broke.
func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, debounce func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				debounce()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(strings.ToLower(err.Error()), "closed") {
				return
			}
		}
	}
}

type backoff struct {
	cur time.Duration
	rng *rand.Rand
}

func (b *backoff) reset() { b.cur = watchBackoffBase }

func (b *backoff) sleep(ctx context.Context) bool {
	wait := b.cur + time.Duration(b.rng.Int63n(int64(b.cur/2)+1))
	b.cur *= 2
	if b.cur > watchBackoffMax {
		b.cur = watchBackoffMax
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
