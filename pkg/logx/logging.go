package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "relaybot/internal/transport"
)

// ---- Config ----

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Channel ChannelConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChannelConfig controls mirroring of log records into a Telegram chat.
type ChannelConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// TextSender is the subset of the transport the channel sink needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// ---- Logger API ----

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Fields apply in order; later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field   { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field  { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger.
//
//   - Created from a Service, it follows Service.Apply() swaps.
//   - With() returns a derived logger with fixed fields.
//   - The zero value is a safe no-op logger.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool

	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole creates a standalone console logger, used before the log
// service exists (CLI subcommands, bootstrap errors).
func NewConsole(level string) Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"
	zl := zerolog.New(newConsoleWriter(os.Stdout)).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

// NewWriter builds a logger writing JSON lines to w. Handy in tests.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	if l.svc != nil {
		return l.svc.current()
	}
	if l.hasBase {
		return l.base
	}
	return zerolog.Nop()
}

// Zerolog exposes the current underlying logger for libraries that want
// a plain zerolog.Logger, such as the net/http server error log.
func (l Logger) Zerolog() zerolog.Logger { return l.root() }

func (l Logger) Enabled(level Level) bool {
	return level >= l.root().GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// ---- Service (dynamic config + sinks) ----

type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender   TextSender
	queue    chan channelItem
	workOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// guarded by mu
	chatID   int64
	threadID int
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type channelItem struct {
	to  kit.ChatTarget
	msg string
}

// New creates the logging service, applies cfg immediately and returns the
// service plus a root Logger bound to it.
func New(cfg Config, sender TextSender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		cfg:      cfg,
		sender:   sender,
		queue:    make(chan channelItem, 256),
		threadID: cfg.Channel.ThreadID,
	}
	s.root.Store(zerolog.New(newConsoleWriter(os.Stdout)).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetChannelTarget points the channel sink at a chat. chatID 0 disables it.
func (s *Service) SetChannelTarget(chatID int64, threadID int) {
	s.mu.Lock()
	s.chatID = chatID
	if threadID != 0 {
		s.threadID = threadID
	}
	s.mu.Unlock()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Channel.MinLevel, zerolog.WarnLevel)
	rps := cfg.Channel.RatePerSec
	if rps < 1 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Channel.ThreadID != 0 {
		s.threadID = cfg.Channel.ThreadID
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./relaybot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Channel.Enabled {
		s.workOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.channelWorker(ctx)
			}()
		})
		writers = append(writers, &channelWriter{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: channel logging enabled but telegram.console_channel_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	s.root.Store(zl)
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func (s *Service) channelWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if s.sender == nil {
				continue
			}
			_, _ = s.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

// ---- channel writer (zerolog sink) ----

type channelWriter struct{ svc *Service }

func (w *channelWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *channelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	chatID, threadID, lim, minLevel := s.chatID, s.threadID, s.limiter, s.minLevel
	s.mu.Unlock()

	if chatID == 0 || s.sender == nil || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatChannelRecord(p)
	if msg == "" {
		return len(p), nil
	}
	// Never block the caller; drop when the queue is full.
	select {
	case s.queue <- channelItem{to: kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatChannelRecord renders one zerolog JSON line as a compact chat message.
func formatChannelRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
