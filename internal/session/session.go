// Package session provides proxy session records, their durable
// stores, and the in-process read cache in front of them.
package session

import (
	"context"
	"errors"
	"fmt"
)

// Engine identifies which autobook automation variant a session uses.
type Engine string

// Known autobook engines.
const (
	EngineA Engine = "engineA"
	EngineB Engine = "engineB"
)

// Valid reports whether the engine is a known variant.
func (e Engine) Valid() bool {
	switch e {
	case EngineA, EngineB:
		return true
	}
	return false
}

// Sentinel errors for session operations.
var (
	// ErrSessionNotFound indicates the session id is unknown to the
	// durable store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession indicates a session record failed validation
	// before insert.
	ErrInvalidSession = errors.New("invalid session")
)

// ProxySession identifies one proxied checkout flow. Records are
// immutable after creation: they are written exactly once by the
// deep-link creation flow and only ever read by the proxy.
type ProxySession struct {
	// ID is the opaque bearer token carried in the session cookie.
	ID string `json:"id"`

	// TargetHost is the real booking engine host.
	TargetHost string `json:"targetHost"`

	// TargetBase is the scheme+host origin derived from TargetHost.
	TargetBase string `json:"targetBase"`

	// CheckoutPath is the path+query on the target that the user is
	// redirected into after session creation.
	CheckoutPath string `json:"checkoutPath"`

	// Cookies are optional pre-captured upstream cookies injected into
	// every proxied request.
	Cookies string `json:"cookies,omitempty"`

	// Autobook enables the injected UI automation.
	Autobook bool `json:"autobook"`

	// AutobookEngine selects the automation variant.
	AutobookEngine Engine `json:"autobookEngine,omitempty"`
}

// validate checks a session record before insert.
func (s *ProxySession) validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSession)
	}
	if s.TargetHost == "" {
		return fmt.Errorf("%w: empty target host", ErrInvalidSession)
	}
	if s.Autobook && !s.AutobookEngine.Valid() {
		return fmt.Errorf("%w: unknown autobook engine %q", ErrInvalidSession, s.AutobookEngine)
	}
	return nil
}

// Store is the durable session persistence contract. Implementations
// must return ErrSessionNotFound from Get for unknown ids.
type Store interface {
	// Insert stores a new session record. Sessions are immutable, so
	// Insert is never called twice for the same id.
	Insert(ctx context.Context, s *ProxySession) error

	// Get retrieves a session by id.
	Get(ctx context.Context, id string) (*ProxySession, error)

	// Close releases store resources.
	Close() error
}
