package adminapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrTransport is returned when the server could not be reached or the
	// connection failed mid-request.
	ErrTransport = errors.New("admin api unreachable")

	// ErrUnauthorized is returned for HTTP 401 responses.
	ErrUnauthorized = errors.New("admin api: unauthorized")

	// ErrRejected is returned for 4xx responses other than 401.
	ErrRejected = errors.New("admin api: request rejected")

	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("admin api: server error")
)

// ErrorKind classifies an APIError.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRejected     ErrorKind = "rejected"
	KindServer       ErrorKind = "server"
	KindDecode       ErrorKind = "decode"
	KindRequest      ErrorKind = "request"
)

// KindForStatus maps a non-2xx HTTP status code to its error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthorized
	case code >= 500:
		return KindServer
	default:
		return KindRejected
	}
}

// APIError describes a failed admin API call.
type APIError struct {
	// Op is the endpoint name, or "METHOD path" when unnamed.
	Op     string
	Method string
	Path   string
	// StatusCode is 0 when no response was received.
	StatusCode int
	// Message is the server's message field, else the trimmed body, else
	// the HTTP status text.
	Message string
	Kind    ErrorKind
	// RequestID is the X-Request-ID sent with the request.
	RequestID string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

// Error returns a human-readable description of the failure.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches one of the package sentinels.
// It supports errors.Is(err, ErrUnauthorized) and friends.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// UserMessage returns text fit to show an operator. Rejections and
// authentication failures carry the server's own message; everything else
// uses fallback.
func (e *APIError) UserMessage(fallback string) string {
	if (e.Kind == KindRejected || e.Kind == KindUnauthorized) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// UserMessage extracts operator-facing text from any error, using fallback
// when err is not an *APIError.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage(fallback)
	}
	return fallback
}
