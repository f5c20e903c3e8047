package bolide

import (
	"errors"
	"fmt"
	"time"

	"github.com/pcoutinho/bolide/internal/neo"
	"github.com/pcoutinho/bolide/pkg/circuit"
)

// FailureKind tags a failed feed fetch with exactly one category. The set
// is closed: every failure a fetch can produce maps to one and only one
// of these values.
type FailureKind int

const (
	// FailureUnknown covers anything the other categories do not: malformed
	// payloads, caller cancellation, surprises. Catch-all, never dropped.
	FailureUnknown FailureKind = iota

	// FailureTimeout means the bounded time budget elapsed before a usable
	// response arrived.
	FailureTimeout

	// FailureServer means an HTTP exchange completed and the status
	// indicates failure. The received status is carried on the error.
	FailureServer

	// FailureNetwork means the exchange could not complete for a
	// reachability reason other than the deadline.
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureServer:
		return "server_error"
	case FailureNetwork:
		return "network_error"
	default:
		return "unknown_error"
	}
}

// FetchError is the public shape of a failed feed fetch. Status is
// meaningful only when Kind is FailureServer.
type FetchError struct {
	Kind   FailureKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FailureTimeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	case FailureServer:
		return fmt.Sprintf("fetch %s: server returned status %d", e.URL, e.Status)
	case FailureNetwork:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: network failure: %v", e.URL, e.Err)
		}
		return fmt.Sprintf("fetch %s: network failure", e.URL)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
		}
		return fmt.Sprintf("fetch %s: unknown failure", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates an object is in neither the cache nor the feed.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.ID)
}

// CircuitOpenError indicates the circuit breaker is rejecting feed calls.
type CircuitOpenError struct {
	Message string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open: %s", e.Message)
}

// ConfigError indicates invalid configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Message)
}

// Classify returns the failure kind for any error this package produces.
// Errors that are not fetch failures classify as FailureUnknown.
func Classify(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureUnknown
}

// IsTimeout reports whether err is a fetch that ran out of budget
func IsTimeout(err error) bool {
	return Classify(err) == FailureTimeout
}

// IsNetworkError reports whether err is a reachability failure
func IsNetworkError(err error) bool {
	return Classify(err) == FailureNetwork
}

// ServerStatus returns the HTTP status behind a server failure
func ServerStatus(err error) (int, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == FailureServer {
		return fe.Status, true
	}
	return 0, false
}

// IsNotFound reports whether err means the object does not exist
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsCircuitOpen reports whether err means the breaker rejected the call
func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}

// toPublicKind maps the internal taxonomy onto the public one
func toPublicKind(kind neo.FailureKind) FailureKind {
	switch kind {
	case neo.FailureTimeout:
		return FailureTimeout
	case neo.FailureServer:
		return FailureServer
	case neo.FailureNetwork:
		return FailureNetwork
	default:
		return FailureUnknown
	}
}

// wrapError converts internal errors into their public equivalents at the
// facade boundary. Internal types never leak through the API.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var fe *neo.FetchError
	if errors.As(err, &fe) {
		return &FetchError{
			Kind:   toPublicKind(fe.Kind),
			URL:    fe.URL,
			Status: fe.Status,
			Err:    err,
		}
	}

	var nf *neo.NotFoundError
	if errors.As(err, &nf) {
		return &NotFoundError{ID: nf.Key}
	}

	var ce *circuit.CircuitOpenError
	if errors.As(err, &ce) {
		return &CircuitOpenError{
			Message: fmt.Sprintf("%d consecutive failures, last at %s",
				ce.Failures, ce.LastFailureTime.Format(time.RFC3339)),
		}
	}

	return err
}
