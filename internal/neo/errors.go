package neo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// -----------------------------
// FailureKind
// -----------------------------

// FailureKind tags a failed fetch with exactly one category.
// The set is closed: any failure the transport can produce maps
// to one and only one of these values.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureServer
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

// ClassifyTransport maps a transport-level error to its failure kind.
// The ladder is ordered: deadline expiry wins over everything, caller
// cancellation is not a reachability failure, and anything that is not
// recognizably a network problem stays unknown.
func ClassifyTransport(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, context.Canceled) {
		return FailureUnknown
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureNetwork
	}

	return FailureUnknown
}

// -----------------------------
// FetchError
// -----------------------------

// FetchError is the single error shape the fetch layer produces.
// Status is meaningful only when Kind is FailureServer.
type FetchError struct {
	Kind   FailureKind
	URL    string
	Status int
	Err    error
}

func NewFetchError(kind FailureKind, url string, status int, err error) *FetchError {
	return &FetchError{
		Kind:   kind,
		URL:    url,
		Status: status,
		Err:    err,
	}
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

// AsFetchError unwraps err looking for a FetchError anywhere in the chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Classify returns the failure kind for any error the fetch layer or its
// callers produce. Errors that never passed through the fetch layer are
// unknown by definition.
func Classify(err error) FailureKind {
	if fe, ok := AsFetchError(err); ok {
		return fe.Kind
	}
	return FailureUnknown
}

// -----------------------------
// NotFoundError
// -----------------------------

type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// -----------------------------
// ValidationError
// -----------------------------

type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}

func NewValidationErrorWithCause(message string, cause error) *ValidationError {
	return &ValidationError{
		Message: message,
		Cause:   cause,
	}
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
