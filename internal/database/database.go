package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection used for profiles, subjects and
// finished battles. Live match state never touches the store; it exists
// only in memory while the debate runs.
type Database struct {
	db *sql.DB
}

// New creates a new database connection and applies pending migrations
func New(dataDir string) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "toron.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	d := &Database{db: db}
	if err := d.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	return d, nil
}

// RunMigrations applies every pending schema migration
func (d *Database) RunMigrations() error {
	return NewMigrationManager(d.db).MigrateUp()
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
