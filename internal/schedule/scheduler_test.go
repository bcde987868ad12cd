package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},  // 10 PM daily
		{"0 9 * * 1-5", false}, // 9 AM weekdays
		{"*/5 * * * *", false}, // every 5 minutes
		{"0 0 9 * * *", true},  // seconds field not accepted
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context, config.ScheduleEntry) error { return nil }

	if _, err := New([]config.ScheduleEntry{{Name: "a", Cron: "nope", TaskFile: "t.yaml"}}, noop, testLogger()); err == nil {
		t.Error("invalid cron should error")
	}
	dup := []config.ScheduleEntry{
		{Name: "a", Cron: "0 9 * * *", TaskFile: "t.yaml"},
		{Name: "a", Cron: "0 18 * * *", TaskFile: "t.yaml"},
	}
	if _, err := New(dup, noop, testLogger()); err == nil {
		t.Error("duplicate names should error")
	}
}

func TestScheduler_NextRunAndEntries(t *testing.T) {
	s, err := New([]config.ScheduleEntry{
		{Name: "morning", Cron: "0 9 * * *", TaskFile: "a.yaml"},
		{Name: "evening", Cron: "0 18 * * *", TaskFile: "b.yaml"},
	}, func(context.Context, config.ScheduleEntry) error { return nil }, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Entries(); len(got) != 2 || got[0] != "evening" || got[1] != "morning" {
		t.Errorf("Entries() = %v", got)
	}
	next := s.NextRun("morning")
	if next.IsZero() || next.Hour() != 9 || !next.After(time.Now()) {
		t.Errorf("NextRun(morning) = %v", next)
	}
	if !s.NextRun("missing").IsZero() {
		t.Error("unknown entry should have no next run")
	}
}

func TestScheduler_Trigger(t *testing.T) {
	release := make(chan struct{})
	started := make(chan config.ScheduleEntry, 1)
	run := func(ctx context.Context, e config.ScheduleEntry) error {
		started <- e
		<-release
		return nil
	}
	s, err := New([]config.ScheduleEntry{{Name: "morning", Cron: "0 9 * * *", TaskFile: "a.yaml"}}, run, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "morning") }()

	entry := <-started
	if entry.TaskFile != "a.yaml" {
		t.Errorf("run got %+v", entry)
	}
	if err := s.Trigger(context.Background(), "morning"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("overlapping Trigger() = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.LastRun("morning").IsZero() {
		t.Error("LastRun not recorded")
	}
	if err := s.Trigger(context.Background(), "missing"); err == nil {
		t.Error("unknown entry should error")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New([]config.ScheduleEntry{{Name: "a", Cron: "0 9 * * *", TaskFile: "a.yaml"}},
		func(context.Context, config.ScheduleEntry) error { return nil }, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	s.Stop()
}
