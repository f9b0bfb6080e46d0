// Package scheduler triggers named jobs on cron or interval schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "relaybot/pkg/logx"
)

type Config struct {
	Timezone string
}

type Job struct {
	Name    string
	Spec    string // cron ("0 9 * * *", "@daily"), Go duration ("55m") or HH:MM interval ("02:30")
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Entry describes a registered job for status output.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	jobs   map[string]*def
	log    logx.Logger
}

type def struct {
	job Job
	id  cron.EntryID
}

func New(cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg: cfg,
		// SecondOptional accepts both 5- and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*def{},
		log:    log,
	}
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Normalize turns a schedule string into a cron spec. Durations and HH:MM
// become "@every" specs.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("schedule required")
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return s, nil
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return "", errors.New("interval must be > 0")
		}
		return "@every " + d.String(), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return "", errors.New("interval must be > 0")
		}
		return "@every " + d.String(), nil
	}
	return "", fmt.Errorf("invalid schedule %q (use cron like '0 9 * * *', HH:MM like '02:30', or duration like '55m')", raw)
}

// Add registers (or replaces) a job by name.
func (s *Scheduler) Add(j Job) error {
	if strings.TrimSpace(j.Name) == "" || j.Run == nil {
		return errors.New("scheduler: job needs a name and a func")
	}
	spec, err := Normalize(j.Spec)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", j.Name, err)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: %s: %w", j.Name, err)
	}
	j.Spec = spec

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[j.Name]; ok && s.c != nil {
		s.c.Remove(old.id)
	}
	d := &def{job: j}
	s.jobs[j.Name] = d
	if s.c != nil {
		return s.scheduleLocked(d)
	}
	return nil
}

// Remove drops a job. It reports whether the job existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(d.id)
	}
	delete(s.jobs, name)
	return true
}

func (s *Scheduler) scheduleLocked(d *def) error {
	j := d.job
	ctx := s.ctx
	job := cron.FuncJob(func() {
		start := time.Now()
		jctx := ctx
		if j.Timeout > 0 {
			var cancel context.CancelFunc
			jctx, cancel = context.WithTimeout(ctx, j.Timeout)
			defer cancel()
		}
		if err := j.Run(jctx); err != nil {
			s.log.Warn("job failed", logx.String("job", j.Name), logx.Duration("dur", time.Since(start)), logx.Err(err))
			return
		}
		s.log.Debug("job ok", logx.String("job", j.Name), logx.Duration("dur", time.Since(start)))
	})
	id, err := s.c.AddJob(j.Spec, job)
	if err != nil {
		return err
	}
	d.id = id
	return nil
}

func (s *Scheduler) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start begins triggering. Jobs run with ctx (plus their own timeout).
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	loc := s.location()
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, d := range s.jobs {
		if err := s.scheduleLocked(d); err != nil {
			s.log.Warn("job not scheduled", logx.String("job", d.job.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Apply swaps the config, restarting cron when the timezone changed.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !tzChanged {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
}

// Stop halts triggering and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Entries lists jobs sorted by name. Next is zero while stopped.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, d := range s.jobs {
		e := Entry{Name: d.job.Name, Spec: d.job.Spec}
		if s.c != nil {
			e.Next = s.c.Entry(d.id).Next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
