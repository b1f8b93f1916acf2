package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by storage ports when a key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamAuthorization marks a backend rejecting credentials or access policy.
	// It indicates a misconfigured deployment and is never degraded to an empty result.
	ErrUpstreamAuthorization = errors.New("upstream authorization failed")

	// ErrInvalidInput marks caller input rejected before any upstream call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRecoveryFailed is returned when no structured document could be extracted.
	ErrRecoveryFailed = errors.New("no structured document could be recovered from generation output")
)

// GenerationErrorKind classifies a failed generation request.
type GenerationErrorKind int

const (
	KindUpstream GenerationErrorKind = iota
	KindTimeout
	KindCanceled
	KindUnreachable
	KindAuthorization
)

func (k GenerationErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindUnreachable:
		return "unreachable"
	case KindAuthorization:
		return "authorization"
	default:
		return "upstream"
	}
}

// GenerationError is the outcome of a failed generation request.
type GenerationError struct {
	Kind     GenerationErrorKind
	Endpoint string
	Timeout  time.Duration
	Status   int
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("generation request timed out after %s", e.Timeout)
	case KindCanceled:
		return "generation request was canceled"
	case KindUnreachable:
		return fmt.Sprintf("generation backend unreachable at %s", e.Endpoint)
	case KindAuthorization:
		return fmt.Sprintf("generation backend rejected credentials (status %d): %s", e.Status, e.Message)
	default:
		return e.Message
	}
}

func (e *GenerationError) Unwrap() error {
	if e.Kind == KindAuthorization {
		return ErrUpstreamAuthorization
	}
	return e.Err
}

// IsGenerationKind reports whether err is a GenerationError of the given kind.
func IsGenerationKind(err error, kind GenerationErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == kind
}
