package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSampler_PublishesCaptures(t *testing.T) {
	sink := &recordingSink{}
	ch := NewChannel(sink, WithLogger(discard()))

	var captures atomic.Int32
	capture := func(ctx context.Context) ([]byte, error) {
		captures.Add(1)
		return []byte("png"), nil
	}

	s := NewSampler(10*time.Millisecond, capture, ch, discard())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for captures.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	stopped := captures.Load()
	if stopped < 3 {
		t.Fatalf("only %d captures before deadline", stopped)
	}

	time.Sleep(50 * time.Millisecond)
	if got := captures.Load(); got != stopped {
		t.Errorf("sampler kept capturing after Stop: %d -> %d", stopped, got)
	}
	ch.Close()

	for _, env := range sink.envs {
		if _, ok := env.Data.(ScreenshotPatch); !ok {
			t.Errorf("unexpected envelope %T", env.Data)
		}
	}
	if ch.Snapshot().Screenshot == "" {
		t.Error("snapshot screenshot not recorded")
	}
}

func TestSampler_CaptureErrorsDoNotStopSampling(t *testing.T) {
	ch := NewChannel(&recordingSink{}, WithLogger(discard()))
	defer ch.Close()

	var captures atomic.Int32
	capture := func(ctx context.Context) ([]byte, error) {
		captures.Add(1)
		return nil, errors.New("target closed")
	}
	s := NewSampler(5*time.Millisecond, capture, ch, discard())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for captures.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if captures.Load() < 3 {
		t.Errorf("sampling stopped after failures: %d captures", captures.Load())
	}
}

func TestSampler_StopIsIdempotent(t *testing.T) {
	ch := NewChannel(&recordingSink{}, WithLogger(discard()))
	defer ch.Close()

	s := NewSampler(time.Hour, func(context.Context) ([]byte, error) { return nil, nil }, ch, discard())
	s.Stop()
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
