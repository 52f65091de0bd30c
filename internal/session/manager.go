package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

// sessionTracerName is the OpenTelemetry tracer name for session
// operations.
const sessionTracerName = "bookproxy/session"

// NewStore creates a durable session store based on the configuration.
func NewStore(cfg *config.StoreConfig, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("session store: nil configuration")
	}

	switch cfg.Type {
	case config.StoreTypeRedis:
		return NewRedisStore(cfg.Redis, logger)
	case config.StoreTypeSQLite, "":
		return NewSQLiteStore(cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("session store: unknown type %q", cfg.Type)
	}
}

// Manager combines the durable store with the bounded in-process read
// cache. Because sessions are immutable, the cache-aside design has no
// invalidation problem: entries can be absent but never stale.
type Manager struct {
	store   Store
	cache   *readCache
	logger  observability.Logger
	metrics *observability.Metrics
}

// ManagerOption is a functional option for configuring the manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the manager.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics sink for the manager.
func WithManagerMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, cacheCfg config.SessionCacheConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		cache:  newReadCache(cacheCfg.MaxEntries, cacheCfg.TTL.Duration()),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Create stores a new immutable session and returns its id. TargetBase
// is derived from the target host; booking engines are https-only.
func (m *Manager) Create(
	ctx context.Context,
	cookies, targetHost, checkoutPath string,
	autobook bool,
	engine Engine,
) (string, error) {
	ctx, span := otel.Tracer(sessionTracerName).Start(ctx, "session.Create",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("session.target_host", targetHost)),
	)
	defer span.End()

	sess := &ProxySession{
		ID:             uuid.NewString(),
		TargetHost:     targetHost,
		TargetBase:     "https://" + targetHost,
		CheckoutPath:   checkoutPath,
		Cookies:        cookies,
		Autobook:       autobook,
		AutobookEngine: engine,
	}

	if err := m.store.Insert(ctx, sess); err != nil {
		return "", err
	}

	m.cache.put(sess)

	if m.metrics != nil {
		m.metrics.RecordSessionCreated()
	}

	m.logger.Info("session created",
		observability.String("session_id", sess.ID),
		observability.String("target_host", targetHost),
		observability.Bool("autobook", autobook),
	)

	return sess.ID, nil
}

// Get resolves a session by id, probing the read cache before the
// durable store. Store failures propagate; callers treat them the same
// as ErrSessionNotFound for response purposes.
func (m *Manager) Get(ctx context.Context, id string) (*ProxySession, error) {
	ctx, span := otel.Tracer(sessionTracerName).Start(ctx, "session.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	if sess, expired := m.cache.get(id); sess != nil {
		m.recordCacheLookup("hit")
		span.SetAttributes(attribute.Bool("session.cache_hit", true))
		return sess, nil
	} else if expired {
		m.recordCacheLookup("expired")
	} else {
		m.recordCacheLookup("miss")
	}

	span.SetAttributes(attribute.Bool("session.cache_hit", false))

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("session store lookup failed",
				observability.String("session_id", id),
				observability.Error(err),
			)
		}
		return nil, err
	}

	m.cache.put(sess)

	return sess, nil
}

// CacheLen reports the current read cache size.
func (m *Manager) CacheLen() int {
	return m.cache.len()
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) recordCacheLookup(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordSessionCacheLookup(outcome)
	}
}
