// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package titleindex provides the SQLite-backed title index: a per-process
// cache of every archive's entry titles, rebuilt incrementally as the
// archive registry discovers new or changed .zim files (spec.md §3/§4).
//
// All writes (index rebuilds) are serialized through a dedicated write
// connection guarded by a mutex, so concurrent archive rescans never collide
// with SQLite's single-writer model; reads use a pooled connection and can
// run fully in parallel with an in-flight rebuild of a different archive.
package titleindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the title index's SQLite handle: one dedicated write connection
// serializing rebuilds, plus a read pool for concurrent search queries.
type Store struct {
	conn      *sql.DB
	writeConn *sql.Conn
	writeMu   sync.Mutex
	stmts     *ttlcache.Cache[string, *sql.Stmt]

	closeOnce sync.Once
	closeErr  error
}

const (
	defaultBusyTimeout       = 5 * time.Second
	defaultBusyTimeoutMillis = int(defaultBusyTimeout / time.Millisecond)
	connectionSetupTimeout   = 5 * time.Second
)

var driverInit sync.Once

func registerConnectionHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA foreign_keys = ON",
				fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMillis),
				"PRAGMA analysis_limit = 400",
			}
			for _, pragma := range pragmas {
				if _, err := conn.ExecContext(ctx, pragma, nil); err != nil {
					return fmt.Errorf("connection hook exec %q: %w", pragma, err)
				}
			}
			return nil
		})
	})
}

// Open opens (creating if necessary) the title index database at path.
func Open(path string) (*Store, error) {
	log.Info().Str("path", path).Msg("opening title index")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create title index directory: %w", err)
	}

	registerConnectionHook()

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open title index: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	stmtOpts := ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(5 * time.Minute).
		SetDeallocationFunc(func(_ string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
			if s != nil {
				_ = s.Close()
			}
		})

	s := &Store{
		conn:  conn,
		stmts: ttlcache.New(stmtOpts),
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate title index: %w", err)
	}

	conn.SetMaxOpenConns(0)
	conn.SetMaxIdleConns(4)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	writeConn, err := conn.Conn(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire write connection: %w", err)
	}
	s.writeConn = writeConn

	return s, nil
}

func (s *Store) getStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts.Get(query); ok && stmt != nil {
		return stmt, nil
	}
	stmt, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts.Set(query, stmt, ttlcache.DefaultTTL)
	return stmt, nil
}

// execContext routes a single write statement through the dedicated write
// connection under the write mutex.
func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeConn.ExecContext(ctx, query, args...)
}

// queryContext uses the read pool with prepared-statement caching.
func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := s.getStmt(ctx, query)
	if err != nil {
		return s.conn.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

// queryRowContext uses the read pool with prepared-statement caching.
func (s *Store) queryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := s.getStmt(ctx, query)
	if err != nil {
		return s.conn.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// WriteTx runs fn within a transaction on the dedicated write connection,
// serialized against all other index rebuilds via the write mutex.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.writeConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes both connections.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.stmts.Close()
		if s.writeConn != nil {
			_ = s.writeConn.Close()
		}
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Store) migrate() error {
	ctx := context.Background()

	if _, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM migrations WHERE filename = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile(filepath.Join("migrations", f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (filename) VALUES (?)", f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
		log.Debug().Str("migration", f).Msg("applied title index migration")
	}

	return nil
}
