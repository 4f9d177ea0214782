// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported database types
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// PostgreSQL error codes the engine reacts to.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// Dialect captures the per-driver differences the engine cares about.
type Dialect struct {
	Type string
}

// TxOptions returns the options for write transactions on the vote ledger.
// PostgreSQL runs them SERIALIZABLE. SQLite is serializable already: writers
// are serialized by the database lock and the pool holds a single
// connection.
func (d Dialect) TxOptions() *sql.TxOptions {
	if d.Type == TypePostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	return nil
}

// ClockQuery returns the statement that reads the database clock inside a
// transaction, or "" when the database shares the process clock. SQLite runs
// in process, and its CURRENT_TIMESTAMP only has second precision.
func (d Dialect) ClockQuery() string {
	if d.Type == TypePostgres {
		return "SELECT CURRENT_TIMESTAMP"
	}

	return ""
}

// Open connects to the database, verifies the connection, and returns the
// dialect to use with it.
func Open(ctx context.Context, dbType, url string) (*sql.DB, Dialect, error) {
	switch dbType {
	case TypePostgres:
		conn, err := sql.Open("postgres", url)
		if err != nil {
			return nil, Dialect{}, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, Dialect{}, fmt.Errorf("failed to ping postgres: %w", err)
		}

		return conn, Dialect{Type: TypePostgres}, nil

	case TypeSQLite, "":
		conn, err := sql.Open("sqlite", sqliteDSN(url))
		if err != nil {
			return nil, Dialect{}, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// One connection serializes every transaction.
		conn.SetMaxOpenConns(1)
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, Dialect{}, fmt.Errorf("failed to ping sqlite: %w", err)
		}

		return conn, Dialect{Type: TypeSQLite}, nil

	default:
		return nil, Dialect{}, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// sqliteDSN adds the pragmas the engine relies on unless the caller set them.
func sqliteDSN(url string) string {
	url = strings.TrimPrefix(url, "sqlite://")
	if strings.Contains(url, "_pragma=") {
		return url
	}

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}

	return url + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}

// IsTransient reports whether err is worth retrying: serialization conflicts,
// deadlocks, lock contention, and lost connections.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return true
		}
		// Class 08: connection exceptions
		return pqErr.Code.Class() == "08"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		primary := liteErr.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
