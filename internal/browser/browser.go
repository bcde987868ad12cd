// Package browser drives the automated browser used to visit listing sites.
// A Launcher starts a Session; the engine owns the session for exactly one
// run and closes it on every exit path.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// ErrSessionClosed is returned by operations on a closed session
var ErrSessionClosed = errors.New("browser session closed")

// StepKind identifies one step of a site visit
type StepKind string

const (
	StepLogin   StepKind = "login"
	StepWait    StepKind = "wait"
	StepSearch  StepKind = "search"
	StepExtract StepKind = "extract"
)

// Step is a single instruction executed against the current page
type Step struct {
	Kind        StepKind
	Description string

	// Credential is set for login steps
	Credential *domain.SiteCredential
	// Query is set for search steps
	Query string
	// Settle is how long a wait step lets the page render
	Settle time.Duration
}

// Session is one live browser
type Session interface {
	// Navigate loads url in the session's page
	Navigate(ctx context.Context, url string) error
	// Perform executes step against the current page
	Perform(ctx context.Context, step Step) error
	// PageText returns the visible text of the current page
	PageText(ctx context.Context) (string, error)
	// Screenshot returns a PNG capture of the viewport
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser. It is idempotent.
	Close() error
}

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
