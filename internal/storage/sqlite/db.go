package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/scribelabs/scribe-live/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// DB wraps the shared SQLite connection used by all storage types
type DB struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (or creates) the SQLite database at the given path
func New(path string, log *logger.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the file is actually usable
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The modernc driver does not support concurrent writers
	db.SetMaxOpenConns(1)

	log.Info("Opened SQLite database", String("path", path))

	return &DB{
		db:     db,
		logger: log.Named("sqlite"),
	}, nil
}

// GetDB returns the underlying database handle
func (d *DB) GetDB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
