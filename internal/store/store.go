// Package store is the sole process-wide writer to the embedded database:
// a single-goroutine batched-insert queue fronting a sqlite connection, plus
// the read queries the analytics and websocket layers run against it.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nodewatch/storj-node-monitor/infrastructure/errors"
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
)

// Store owns the single *sql.DB connection used for both reads and the
// batched writer goroutine. sqlite tolerates concurrent readers fine; all
// writes funnel through Writer to keep "sole process-wide writer" true even
// under WAL, which otherwise would allow writer/writer races.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open creates (or reopens) the sqlite database at path, applies pragmas,
// and lazily migrates the schema forward.
func Open(path string, log *logging.Logger) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite allows only one writer regardless of connection count; pinning
	// the pool to one connection avoids SQLITE_BUSY storms between Go
	// goroutines racing for sqlite's own internal lock.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, stmt := range strings.Split(pragmaStatements, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("pragma %q: %w", stmt, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema migration: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for read-side packages (analytics, wsapi)
// that need queries this package hasn't grown dedicated methods for yet.
func (s *Store) DB() *sql.DB {
	return s.db
}

// classifyErr maps a raw sqlite error into the service error-kind taxonomy
// so callers (writer retry loop, pollers) can branch on kind rather than
// string-matching driver errors.
func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return errors.DBBusy(op, err)
	}
	if strings.Contains(msg, "disk") || strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt") {
		return errors.DBFatal(op, err)
	}
	return errors.DatabaseError(op, err)
}
