package relay

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage   = errors.New("消息不能为空")
	ErrEmptyPersonaID = errors.New("联系人ID不能为空")
)

// InvalidRequestError is a request-shape failure. Its message is safe to show
// to the caller.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string { return e.Err.Error() }
func (e *InvalidRequestError) Unwrap() error { return e.Err }

// PersonaResolutionError reports a persona id missing from the catalog.
type PersonaResolutionError struct {
	PersonaID string
}

func (e *PersonaResolutionError) Error() string {
	return fmt.Sprintf("persona %q not found", e.PersonaID)
}

type UpstreamErrorKind int

const (
	UpstreamOther UpstreamErrorKind = iota
	UpstreamRateLimited
	UpstreamTimeout
	UpstreamUnauthorized
)

func (k UpstreamErrorKind) String() string {
	switch k {
	case UpstreamRateLimited:
		return "rate_limited"
	case UpstreamTimeout:
		return "timeout"
	case UpstreamUnauthorized:
		return "unauthorized"
	default:
		return "upstream_error"
	}
}

// UpstreamError is returned by completion clients. Kind drives the fallback
// reply; Status is the upstream HTTP status when one was received.
type UpstreamError struct {
	Kind   UpstreamErrorKind
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that are not *UpstreamError count as
// UpstreamOther.
func KindOf(err error) UpstreamErrorKind {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return UpstreamOther
}
