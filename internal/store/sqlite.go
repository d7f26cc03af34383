package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/tempmail/internal/model"
)

// Logical key names in the kv table.
const (
	keyAddress = "current_address"
	keyToken   = "current_session_token"
)

// ErrNoSession is returned by UpdateToken when nothing is stored.
var ErrNoSession = errors.New("no session stored")

// SQLiteStore implements SessionStore using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, errors.Wrapf(err, "creating data directory for %s", dbPath)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite db")
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling WAL mode")
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return errors.Wrap(err, "checking schema_version table")
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return errors.Wrap(err, "reading schema version")
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return errors.Wrapf(err, "applying migration v%d", m.version)
		}
	}

	return nil
}

// LoadSession returns the stored identity, or nil if either half is missing.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*model.Session, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT key, value FROM kv WHERE key IN (?, ?)", keyAddress, keyToken)
	if err != nil {
		return nil, errors.Wrap(err, "querying session")
	}
	defer rows.Close()

	var sess model.Session
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "scanning session row")
		}
		switch k {
		case keyAddress:
			sess.Address = v
		case keyToken:
			sess.Token = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading session rows")
	}

	if !sess.Valid() {
		return nil, nil
	}
	return &sess, nil
}

// SaveSession writes the identity and empties the inbox in one transaction.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	if !sess.Valid() {
		return errors.New("session must have both address and token")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if err := putKey(ctx, tx, keyAddress, sess.Address); err != nil {
		return err
	}
	if err := putKey(ctx, tx, keyToken, sess.Token); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM inbox"); err != nil {
		return errors.Wrap(err, "clearing inbox")
	}

	return tx.Commit()
}

// UpdateToken swaps the stored token, keeping address and inbox.
func (s *SQLiteStore) UpdateToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE kv SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ?",
		token, keyToken)
	if err != nil {
		return errors.Wrap(err, "updating token")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNoSession
	}
	return nil
}

// ClearSession removes address, token and inbox in one transaction.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM kv WHERE key IN (?, ?)", keyAddress, keyToken); err != nil {
		return errors.Wrap(err, "clearing session")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM inbox"); err != nil {
		return errors.Wrap(err, "clearing inbox")
	}

	return tx.Commit()
}

// LoadInbox retrieves the cached messages ordered newest first.
func (s *SQLiteStore) LoadInbox(ctx context.Context) (model.Inbox, error) {
	inbox := model.Inbox{}
	err := s.db.SelectContext(ctx, &inbox, `
		SELECT id, sender, subject, excerpt, timestamp, read_flag, date
		FROM inbox ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "querying inbox")
	}
	return inbox, nil
}

// SaveInbox replaces the cached messages, keeping the given order.
func (s *SQLiteStore) SaveInbox(ctx context.Context, inbox model.Inbox) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM inbox"); err != nil {
		return errors.Wrap(err, "clearing inbox")
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO inbox (
			id, position, sender, subject, excerpt, timestamp, read_flag, date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing inbox insert")
	}
	defer stmt.Close()

	for i, m := range inbox {
		_, err := stmt.ExecContext(ctx,
			m.ID, i, m.From, m.Subject, m.Excerpt, m.Timestamp, m.ReadFlag, m.Date)
		if err != nil {
			return errors.Wrapf(err, "inserting message %s", m.ID)
		}
	}

	return tx.Commit()
}

// ClearInbox deletes every cached message.
func (s *SQLiteStore) ClearInbox(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM inbox"); err != nil {
		return errors.Wrap(err, "clearing inbox")
	}
	return nil
}

// putKey upserts one kv entry inside tx.
func putKey(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	return nil
}

