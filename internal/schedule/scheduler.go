// Package schedule triggers verification runs of task files on cron
// schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/vacancy-verifier/internal/config"
)

// ErrAlreadyRunning is returned when an entry is triggered while its
// previous run is still going
var ErrAlreadyRunning = errors.New("scheduled run still in progress")

// RunFunc executes one scheduled verification
type RunFunc func(ctx context.Context, entry config.ScheduleEntry) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Scheduler runs schedule entries on their cron expressions
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]config.ScheduleEntry
	schedules map[string]cron.Schedule
	running   map[string]bool
	lastRun   map[string]time.Time
	ctx       context.Context
}

// New validates entries and creates a stopped scheduler
func New(entries []config.ScheduleEntry, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithParser(parser)),
		run:       run,
		logger:    logger,
		entries:   make(map[string]config.ScheduleEntry),
		schedules: make(map[string]cron.Schedule),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		ctx:       context.Background(),
	}

	for _, e := range entries {
		if _, dup := s.entries[e.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule %q", e.Name)
		}
		sched, err := ParseCron(e.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron expression: %w", e.Name, err)
		}
		entry := e
		s.entries[e.Name] = entry
		s.schedules[e.Name] = sched
		s.cron.Schedule(sched, cron.FuncJob(func() {
			if err := s.Trigger(s.context(), entry.Name); err != nil {
				s.logger.Warn("scheduled verification failed", "schedule", entry.Name, "error", err)
			}
		}))
	}
	return s, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Start begins firing entries. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	for _, name := range s.Entries() {
		s.logger.Info("schedule armed", "schedule", name, "next", s.NextRun(name))
	}
}

// Stop halts the cron loop and waits for running jobs to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger runs the named entry now
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown schedule %q", name)
	}
	if s.running[name] {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running[name] = true
	s.mu.Unlock()

	s.logger.Info("scheduled verification starting", "schedule", name, "task_file", entry.TaskFile)
	err := s.run(ctx, entry)

	s.mu.Lock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
	s.mu.Unlock()
	return err
}

// NextRun returns the next scheduled time for an entry
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// LastRun returns when an entry last finished
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun[name]
}

// Entries returns the entry names in order
func (s *Scheduler) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
