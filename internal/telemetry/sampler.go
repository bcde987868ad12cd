package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSampleInterval is how often a Sampler captures a visual sample
const DefaultSampleInterval = time.Second

// CaptureFunc returns a PNG image of the current page
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Sampler periodically captures the browser and publishes each capture as
// a screenshot on a Channel.
type Sampler struct {
	interval time.Duration
	capture  CaptureFunc
	channel  *Channel
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a sampler. A non-positive interval uses DefaultSampleInterval.
func NewSampler(interval time.Duration, capture CaptureFunc, channel *Channel, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		interval: interval,
		capture:  capture,
		channel:  channel,
		logger:   logger,
	}
}

// Start begins sampling in the background. Calling Start on a running
// sampler does nothing.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			png, err := s.capture(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("screenshot capture failed", "error", err)
				}
				continue
			}
			s.channel.Screenshot(png)
		}
	}
}

// Stop halts sampling and waits for an in-flight capture to finish.
// It is idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
