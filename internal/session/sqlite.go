package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS proxy_sessions (
	id              TEXT PRIMARY KEY,
	target_host     TEXT NOT NULL,
	target_base     TEXT NOT NULL,
	checkout_path   TEXT NOT NULL,
	cookies         TEXT NOT NULL DEFAULT '',
	autobook        INTEGER NOT NULL DEFAULT 0,
	autobook_engine TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
)`

// sqliteStore persists sessions in a single SQLite table. Rows are
// inserted once and never updated.
type sqliteStore struct {
	db     *sql.DB
	logger observability.Logger
}

// NewSQLiteStore creates a SQLite-backed session store at the given
// path. ":memory:" is accepted for tests.
func NewSQLiteStore(cfg *config.SQLiteStoreConfig, logger observability.Logger) (Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("sqlite store: missing path")
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", cfg.Path, err)
	}

	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: create schema: %w", err)
	}

	logger.Info("sqlite session store initialized",
		observability.String("path", cfg.Path))

	return &sqliteStore{db: db, logger: logger}, nil
}

// Insert stores a new session record.
func (s *sqliteStore) Insert(ctx context.Context, sess *ProxySession) error {
	if err := sess.validate(); err != nil {
		return err
	}

	autobook := 0
	if sess.Autobook {
		autobook = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxy_sessions
		(id, target_host, target_base, checkout_path, cookies, autobook, autobook_engine, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.TargetHost,
		sess.TargetBase,
		sess.CheckoutPath,
		sess.Cookies,
		autobook,
		string(sess.AutobookEngine),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: insert session %s: %w", sess.ID, err)
	}

	return nil
}

// Get retrieves a session by id.
func (s *sqliteStore) Get(ctx context.Context, id string) (*ProxySession, error) {
	var sess ProxySession
	var autobook int
	var engine string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, target_host, target_base, checkout_path, cookies, autobook, autobook_engine
		FROM proxy_sessions WHERE id = ?`, id).Scan(
		&sess.ID,
		&sess.TargetHost,
		&sess.TargetBase,
		&sess.CheckoutPath,
		&sess.Cookies,
		&autobook,
		&engine,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("sqlite store: get session %s: %w", id, err)
	}

	sess.Autobook = autobook != 0
	sess.AutobookEngine = Engine(engine)

	return &sess, nil
}

// PurgeOlderThan deletes sessions created before the given age and
// returns the number of rows removed. Durable sessions are normally
// kept forever; this exists for operators who opt into a janitor.
func (s *sqliteStore) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM proxy_sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: purge: %w", err)
	}

	return res.RowsAffected()
}

// Close closes the database.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
