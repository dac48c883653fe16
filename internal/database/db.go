// Package database manages the embedded SQLite store that backs rule
// persistence. The database is the recovery source only: every rule
// mutation writes through to it synchronously, while request-path
// lookups are served entirely from the in-memory rule store.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/constants"
)

// Pool represents the database handle for rule storage.
type Pool struct {
	*sqlx.DB
}

// Connect opens (creating if needed) the rules database under the given
// storage directory. An unwritable storage directory is a startup
// failure; the service must not begin serving without durable storage.
func Connect(storagePath string) (*Pool, error) {
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", storagePath, err)
	}

	dbPath := filepath.Join(storagePath, constants.RulesDatabaseFile)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules database %s: %w", dbPath, err)
	}

	// A single connection serializes all mutations at the driver level;
	// the hot path never queries the database, so concurrency here buys
	// nothing and SQLITE_BUSY costs correctness.
	db.SetMaxOpenConns(1)

	log.Info().Str("path", dbPath).Msg("Connected to rules database")

	return &Pool{DB: db}, nil
}

// HealthCheck verifies the database connection is alive.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.PingContext(ctx)
}

// Close closes the database handle.
func (p *Pool) Close() {
	if p != nil && p.DB != nil {
		log.Info().Msg("Closing rules database")
		if err := p.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close rules database")
		}
	}
}
