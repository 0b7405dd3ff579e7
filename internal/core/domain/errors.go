package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection: network unreachable, timeout or unexpected upstream status.
	ErrConnection = errors.New("connection error")
	// ErrAuthentication: credentials rejected by the upstream.
	ErrAuthentication = errors.New("authentication error")
	// ErrShape: a sub-record is missing an expected field or has an unexpected type.
	ErrShape = errors.New("shape error")
	// ErrNotReady: a first refresh did not succeed.
	ErrNotReady = errors.New("not ready")
	// ErrShutdown: the coordinator is tearing down.
	ErrShutdown = errors.New("coordinator shutting down")
)

const (
	ERROR_CLASS_CONNECTION     = "connection"
	ERROR_CLASS_AUTHENTICATION = "authentication"
	ERROR_CLASS_SHAPE          = "shape"
	ERROR_CLASS_UNKNOWN        = "unknown"
)

// FetchError is a classified adapter failure. It unwraps to both its class
// sentinel and the underlying cause.
type FetchError struct {
	Class    error
	Resource ResourceKind
	Err      error
}

func NewFetchError(class error, resource ResourceKind, err error) *FetchError {
	return &FetchError{
		Class:    class,
		Resource: resource,
		Err:      err,
	}
}

func (e *FetchError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s fetching %s: %v", e.Class, e.Resource, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

func ConnectionError(resource ResourceKind, err error) error {
	return NewFetchError(ErrConnection, resource, err)
}

func AuthenticationError(resource ResourceKind, err error) error {
	return NewFetchError(ErrAuthentication, resource, err)
}

func ShapeError(resource ResourceKind, err error) error {
	return NewFetchError(ErrShape, resource, err)
}

// NotReadyError is returned when a first refresh fails. Target names the
// coordinator or integration that could not be set up.
type NotReadyError struct {
	Target string
	Cause  error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s not ready (%s): %v", e.Target, ClassifyError(e.Cause), e.Cause)
}

func (e *NotReadyError) Unwrap() error {
	return e.Cause
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// ClassifyError maps an error onto the fetch error taxonomy. Authentication
// wins over connection when both are present.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return ERROR_CLASS_AUTHENTICATION
	case errors.Is(err, ErrConnection):
		return ERROR_CLASS_CONNECTION
	case errors.Is(err, ErrShape):
		return ERROR_CLASS_SHAPE
	default:
		return ERROR_CLASS_UNKNOWN
	}
}

// UnknownResourceError is returned by adapters asked for a resource they do
// not serve.
func UnknownResourceError(resource ResourceKind) error {
	return ShapeError(resource, errors.New("resource not served by this adapter"))
}
