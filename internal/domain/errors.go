package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DownloadError is returned when a transfer fails after all attempts
type DownloadError struct {
	URL      string
	Attempts int
	Status   int // last HTTP status, zero if none was received
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s failed after %d attempt(s) (status %d): %v", e.URL, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SearchError is returned when the remote search API rejects a request
type SearchError struct {
	Query  string
	Status int
	Err    error
}

func (e *SearchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("search %q failed (status %d): %v", e.Query, e.Status, e.Err)
	}
	return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// ConfigurationError reports input that makes the requested work impossible
type ConfigurationError struct {
	Reason string
	Err    error // optional cause, such as the search failures behind it
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "configuration error: " + e.Reason + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError formats a ConfigurationError
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// CompilationError is returned when an external media tool invocation fails
type CompilationError struct {
	Stage   string
	Command string
	Output  string // tail of stderr
	Err     error
}

func (e *CompilationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compilation failed at stage %s: %v", e.Stage, e.Err)
	if e.Command != "" {
		fmt.Fprintf(&b, " (command: %s)", e.Command)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, ": %s", e.Output)
	}
	return b.String()
}

func (e *CompilationError) Unwrap() error { return e.Err }

// ValidationError reports a malformed configuration detected before any work
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsRetryable reports whether err is worth retrying. Only download failures
// are; search, configuration, compilation and validation errors are final.
func IsRetryable(err error) bool {
	var dlErr *DownloadError
	return err != nil && errors.As(err, &dlErr)
}
