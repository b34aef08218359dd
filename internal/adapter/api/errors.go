package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure so callers can branch on "unreachable"
// vs "rejected" without inspecting status codes.
type Kind string

const (
	// KindNetwork covers transport failures: DNS, refused connections, and
	// the insecure-endpoint guard. The server was never reached.
	KindNetwork Kind = "network_error"
	// KindAuth covers 401/403 responses.
	KindAuth Kind = "auth_error"
	// KindNotFound covers 404 responses; on the primary task endpoint this
	// is a hard stop.
	KindNotFound Kind = "not_found"
	// KindUnavailable covers 501: persistence not enabled on the server.
	KindUnavailable Kind = "unavailable"
	// KindHTTP covers every other non-2xx response.
	KindHTTP Kind = "http_error"
	// KindTimeout marks the session's global wall-clock expiry. It is
	// produced by the scheduler, never by the transport.
	KindTimeout Kind = "timeout"
)

// Error is the discriminated outcome of a failed request.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 for network failures
	Message string
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s (%d)", e.Kind, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// NewTimeoutError builds the session-timeout error surfaced by the scheduler.
func NewTimeoutError(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

func networkError(msg string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, cause: cause}
}

func statusError(status int, msg string) *Error {
	e := &Error{Status: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusNotImplemented:
		e.Kind = KindUnavailable
	default:
		e.Kind = KindHTTP
	}
	return e
}

// KindOf extracts the Kind from an error chain, or "" when the error did not
// originate here.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
