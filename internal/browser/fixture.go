package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// FixtureLauncher serves canned pages instead of driving a real browser.
// It backs fixture mode and the engine tests.
type FixtureLauncher struct {
	// Pages maps a URL to the text its page shows
	Pages map[string]string
	// DefaultPage is shown for URLs missing from Pages
	DefaultPage string
	// LaunchErr makes Launch fail
	LaunchErr error
	// NavigateErrs makes navigation to specific URLs fail
	NavigateErrs map[string]error
	// OnNavigate is called after every successful navigation
	OnNavigate func(url string)

	mu       sync.Mutex
	sessions []*FixtureSession
}

// Launch returns a new fixture session
func (f *FixtureLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}
	s := &FixtureSession{launcher: f}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far
func (f *FixtureLauncher) Sessions() []*FixtureSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FixtureSession, len(f.sessions))
	copy(out, f.sessions)
	return out
}

// FixtureSession records what the engine asked the browser to do
type FixtureSession struct {
	launcher *FixtureLauncher

	mu      sync.Mutex
	current string
	visits  []string
	steps   []Step
	closed  bool
}

func (s *FixtureSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := s.launcher.NavigateErrs[url]; err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = url
	s.visits = append(s.visits, url)
	s.mu.Unlock()

	if s.launcher.OnNavigate != nil {
		s.launcher.OnNavigate(url)
	}
	return nil
}

func (s *FixtureSession) Perform(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if step.Kind == StepLogin && step.Credential == nil {
		return fmt.Errorf("login step without credential")
	}
	s.steps = append(s.steps, step)
	return nil
}

func (s *FixtureSession) PageText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if text, ok := s.launcher.Pages[s.current]; ok {
		return text, nil
	}
	return s.launcher.DefaultPage, nil
}

func (s *FixtureSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *FixtureSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *FixtureSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Visits returns the URLs navigated to, in order
func (s *FixtureSession) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.visits))
	copy(out, s.visits)
	return out
}

// Steps returns the steps performed, in order
func (s *FixtureSession) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}
