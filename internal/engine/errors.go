package engine

import (
	"errors"
	"fmt"
)

// ErrRunActive is returned when a run is requested while another is active
var ErrRunActive = errors.New("verification run already active")

// errStopped unwinds the pipeline after a stop request
var errStopped = errors.New("verification run stopped")

// SessionInitError means the browser session could not start. It is fatal
// to the run.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("browser session init: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// SiteVisitError is a failure while visiting one site. The run records an
// error outcome for the site and moves on.
type SiteVisitError struct {
	Site string
	Step string
	Err  error
}

func (e *SiteVisitError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Site, e.Step, e.Err)
}

func (e *SiteVisitError) Unwrap() error { return e.Err }

// PersistenceError is a failed upload of one verdict
type PersistenceError struct {
	Property string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Property, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
