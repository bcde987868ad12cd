package credentials

import (
	"errors"
	"fmt"
)

var (
	ErrFormat            = errors.New("malformed credentials source")
	ErrSourceUnavailable = errors.New("credentials source unavailable")
)

// FormatError reports a credentials source that cannot be interpreted as a
// table of site credentials.
type FormatError struct {
	Source string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrFormat.Error(), e.Source, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// SourceUnavailableError reports an I/O failure while reading the source.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnavailable.Error(), e.Source, e.Err)
}

// Is lets errors.Is match both the sentinel and the underlying I/O error.
func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }
