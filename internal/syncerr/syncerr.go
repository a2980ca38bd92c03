// Package syncerr classifies failures of the synchronization engine so the
// HTTP layer can pick a status code and callers can decide whether to retry.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class.
type Kind int

const (
	// KindUnknown is any error that was not classified.
	KindUnknown Kind = iota
	// KindAuth covers bad signatures and CRM token refresh failures.
	KindAuth
	// KindValidation covers malformed bodies and missing identity fields.
	KindValidation
	// KindUpstreamUnavailable covers resources not yet visible and rate limits.
	KindUpstreamUnavailable
	// KindDownstream covers unexpected CRM responses.
	KindDownstream
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindDownstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Error is a classified error. Status is the remote HTTP status when one was involved.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Auth builds a KindAuth error.
func Auth(op string, err error) error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Validation builds a KindValidation error.
func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Unavailable builds a KindUpstreamUnavailable error.
func Unavailable(op string, status int, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Status: status, Err: err}
}

// Downstream builds a KindDownstream error.
func Downstream(op string, status int, err error) error {
	return &Error{Kind: KindDownstream, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status returned to the webhook sender.
// Authentication failures of the inbound request are handled before the
// orchestrator runs, so KindAuth here means the CRM rejected us: 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
