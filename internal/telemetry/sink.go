package telemetry

import (
	"errors"
	"log/slog"
)

// Sink receives telemetry envelopes from the Channel drain loop
type Sink interface {
	Send(env Envelope) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(env Envelope) error

// Send calls f(env)
func (f SinkFunc) Send(env Envelope) error {
	return f(env)
}

// MultiSink fans each envelope out to all sinks
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink delivering to every non-nil sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Send delivers env to every sink and joins their errors
func (m *MultiSink) Send(env Envelope) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes envelopes to a structured logger
type LogSink struct {
	Logger *slog.Logger
}

// Send logs env. Screenshot payloads are summarized by size.
func (l LogSink) Send(env Envelope) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch data := env.Data.(type) {
	case ScreenshotPatch:
		logger.Debug("screenshot", "bytes", len(data.Screenshot))
	case Snapshot:
		logger.Info("state", "status", data.Status, "site", data.CurrentSite,
			"action", data.CurrentAction, "progress", data.Progress.Current, "total", data.Progress.Total)
	case Action:
		logger.Info("action", "type", data.Type, "target", data.Target, "description", data.Description)
	case ErrorMessage:
		logger.Warn("run error", "message", data.Message)
	default:
		logger.Info(env.Type)
	}
	return nil
}
