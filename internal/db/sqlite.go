// Package db opens the SQLite run ledger and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
)

// PoolMode selects how a ledger pool is sized and locked.
type PoolMode string

// Ledger pool modes.
const (
	// ModeWrite is a single connection that takes the write lock when a
	// transaction begins, so concurrent recorders queue instead of failing
	// with SQLITE_BUSY mid-transaction.
	ModeWrite PoolMode = "write"
	// ModeRead is a pool of readers. WAL lets them run alongside the writer.
	ModeRead PoolMode = "read"
)

const (
	busyTimeoutMillis = "5000"
	synchronousLevel  = "NORMAL"
	journalMode       = "WAL"
	defaultReadConns  = 4
	pingTimeout       = 5 * time.Second
)

// OpenSQLite opens a pool on the ledger file at path, creating its directory
// when needed. maxOpen sizes a read pool (0 means 4) and is ignored for
// ModeWrite.
func OpenSQLite(path string, mode PoolMode, maxOpen int) (*sql.DB, error) {
	conns := 1
	switch mode {
	case ModeWrite:
	case ModeRead:
		conns = maxOpen
		if conns <= 0 {
			conns = defaultReadConns
		}
	default:
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open ledger (%s): %w", mode, err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger (%s): %w", mode, err)
	}
	return db, nil
}

// OpenSQLitePair opens the writer and a reader pool on the same ledger, so
// listing runs never waits behind a run that is recording its outcome.
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(path, ModeWrite, 0)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = OpenSQLite(path, ModeRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}

func buildDSN(path string, mode PoolMode) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMillis)
	params.Set("_synchronous", synchronousLevel)
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
