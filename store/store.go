// Package store defines a small capability contract for blob transports —
// open, push, pull, close — with implementations registered by URI scheme.
package store

import (
	"fmt"
	"net/url"
)

// Result reports the outcome of a Push call.
type Result int

const (
	// Success means the bytes were transferred.
	Success Result = iota
	// Skipped means the transport determined the destination already had
	// the bytes before attempting a transfer.
	Skipped
	// SkippedLate means the same thing, but discovered only after the
	// transfer was attempted — an implementation-specific optimization
	// surface.
	SkippedLate
	// Failed is a hard error; the caller aborts.
	Failed
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case SkippedLate:
		return "skipped-late"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials carries the optional auth material a store record may
// declare (username/password) plus a transport-level timeout knob.
type Credentials struct {
	Username string
	Password string
	Timeout  int // seconds; 0 means no deadline
}

// Interface is the capability contract every transport implements.
// Sessions are opened per operation and owned by the caller; on any hard
// failure the caller closes the session before returning.
type Interface interface {
	// Open initializes a session against uri (connect, authenticate).
	// It is idempotent-failure-safe: calling Open again after a failed
	// Open is expected to retry cleanly.
	Open(uri *url.URL, creds Credentials) error

	// Push uploads the bytes at localPath to uri/relativeName.
	Push(localPath string, uri *url.URL, relativeName string) (Result, error)

	// Pull returns the full bytes stored at uri/relativeName, or ok=false
	// if no such object exists there. A transport error is distinct from
	// absence: ok is only meaningful when err is nil.
	Pull(uri *url.URL, relativeName string) (data []byte, ok bool, err error)

	// Close releases session resources. Close on a session that was never
	// successfully Open'd must not panic.
	Close() error
}

// Factory constructs a fresh, unopened Interface implementation.
type Factory func() Interface

// Registry maps a URI scheme to the Factory that serves it.
type Registry map[string]Factory

// NewRegistry returns a Registry with the built-in file, ftp, ftps, and
// sftp transports registered.
func NewRegistry() Registry {
	return Registry{
		"file": func() Interface { return NewFileStore() },
		"ftp":  func() Interface { return NewFTPStore(false) },
		"ftps": func() Interface { return NewFTPStore(true) },
		"sftp": func() Interface { return NewSFTPStore() },
	}
}

// Lookup returns the Factory registered for scheme, if any.
func (r Registry) Lookup(scheme string) (Factory, bool) {
	f, ok := r[scheme]
	return f, ok
}

// New constructs a fresh Interface for uri's scheme.
func (r Registry) New(uri *url.URL) (Interface, error) {
	f, ok := r.Lookup(uri.Scheme)
	if !ok {
		return nil, &UnsupportedSchemeError{Scheme: uri.Scheme}
	}
	return f(), nil
}

// UnsupportedSchemeError is returned when no implementation is registered
// for a store's URI scheme. Callers typically warn and skip that store
// rather than treat this as fatal.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported store scheme: %q", e.Scheme)
}
