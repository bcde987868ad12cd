// Package notify announces finished verification runs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Level is the severity of a notification
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Field is a labelled figure shown alongside a notification
type Field struct {
	Name  string
	Value string
}

// Notification is one message to deliver
type Notification struct {
	Title   string
	Message string
	Level   Level
	RunID   string // optional run reference
	Fields  []Field
}

// Notifier delivers notifications
type Notifier interface {
	Send(n Notification) error
}

// ForRun builds the notification announcing a finished run
func ForRun(run domain.RunSummary) Notification {
	n := Notification{
		RunID: run.ID,
		Fields: []Field{
			{Name: "Outcome", Value: string(run.Outcome)},
			{Name: "Verified", Value: fmt.Sprintf("%d/%d", run.Completed, run.Properties)},
			{Name: "Saved", Value: fmt.Sprint(run.Uploaded)},
			{Name: "Failed uploads", Value: fmt.Sprint(run.UploadsFailed)},
			{Name: "Duration", Value: run.Duration().Round(time.Second).String()},
		},
		Message: fmt.Sprintf("%d of %d properties verified, %d result(s) saved, %d failed. Took %s.",
			run.Completed, run.Properties, run.Uploaded, run.UploadsFailed,
			run.Duration().Round(time.Second)),
	}
	if run.Message != "" {
		n.Message = run.Message + "\n" + n.Message
	}
	switch run.Outcome {
	case domain.RunCompleted:
		n.Title, n.Level = "Verification run complete", LevelSuccess
	case domain.RunPartial:
		n.Title, n.Level = "Verification run finished with upload failures", LevelWarning
	case domain.RunStopped:
		n.Title, n.Level = "Verification run stopped", LevelWarning
	default:
		n.Title, n.Level = "Verification run failed", LevelError
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers and joins their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Send(n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, n.Title, "message", n.Message, "run", n.RunID)
	return nil
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
