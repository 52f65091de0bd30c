// Package proxy implements the per-request reverse proxy pipeline of
// the booking proxy.
package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for proxy operations.
var (
	// ErrNoSessionCookie indicates the inbound request carries no
	// session cookie.
	ErrNoSessionCookie = errors.New("no session cookie")

	// ErrUpstreamUnreachable indicates the upstream connection failed.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamTimeout indicates the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// ProxyError represents a proxy pipeline error with details.
type ProxyError struct {
	Op      string // Operation that failed
	Target  string // Target URL if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	switch {
	case e.Target != "" && e.Cause != nil:
		return fmt.Sprintf("proxy error [%s] target=%s: %s: %v", e.Op, e.Target, e.Message, e.Cause)
	case e.Target != "":
		return fmt.Sprintf("proxy error [%s] target=%s: %s", e.Op, e.Target, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("proxy error [%s]: %s: %v", e.Op, e.Message, e.Cause)
	default:
		return fmt.Sprintf("proxy error [%s]: %s", e.Op, e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// NewUpstreamError wraps a transport failure with its target.
func NewUpstreamError(target string, cause error) *ProxyError {
	return &ProxyError{
		Op:      "round_trip",
		Target:  target,
		Message: "upstream request failed",
		Cause:   cause,
	}
}
