package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
)

// Store wraps a single project's SQLite database through two separate
// *sql.DB handles over the same WAL-mode database: db serializes every
// write onto a single connection (SQLite allows only one writer at a
// time regardless), while readDB is a small pool of read-only
// connections that can run concurrently with that writer and with each
// other, since WAL readers never block on the writer. A ":memory:" DSN
// has no WAL: it becomes one shared-cache in-memory database, where a
// read of a table that an open write transaction has changed fails with
// a table-locked error instead of running alongside the writer.
type Store struct {
	db     *sql.DB
	readDB *sql.DB
	logger *logging.Logger
}

// maxReadConns bounds the read pool; a single desktop project has no
// need for more concurrent readers than this.
const maxReadConns = 4

// Open opens (creating if necessary) the SQLite database at path and
// brings its schema up to date. dsn accepts the same forms as
// modernc.org/sqlite: a bare path, ":memory:", or a "file:" URI with
// query parameters.
func Open(ctx context.Context, dsn string, logger *logging.Logger) (*Store, error) {
	writeDSN := withPragmas(dsn, "foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	readDSN := withPragmas(dsn, "foreign_keys(1)", "query_only(1)", "busy_timeout(5000)")
	readDB, err := sql.Open("sqlite", readDSN)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening read pool: %w", err)
	}
	readDB.SetMaxOpenConns(maxReadConns)

	if logger == nil {
		logger = logging.FromContext(context.Background())
	}

	return &Store{db: db, readDB: readDB, logger: logger}, nil
}

// withPragmas rewrites dsn so every connection opened from it — including
// ones the pool opens later to grow beyond the first — applies the given
// SQLite pragmas and, for an in-memory database, shares the same backing
// database across connections instead of each getting its own empty one.
func withPragmas(dsn string, pragmas ...string) string {
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}
	return dsn
}

// Close releases both the write connection and the read pool.
func (s *Store) Close() error {
	readErr := s.readDB.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return readErr
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}

func timeToRFC3339(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces constraint violations as an error whose
	// message contains "UNIQUE constraint failed"; there is no typed
	// sentinel exported for this, so match on the well-known substring.
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint failed", "constraint failed: UNIQUE")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(sub) <= len(s) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func wrapSQLErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	if isUniqueConstraintErr(err) {
		return fmt.Errorf("%s: %w", op, errs.ErrConflict)
	}
	return fmt.Errorf("%s: %w: %v", op, errs.ErrIO, err)
}
