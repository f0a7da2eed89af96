package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/toronlabs/toron_backend/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	ID        int
	Name      string
	SQL       string
	Timestamp time.Time
}

// MigrationRecord represents a record of a migration that has been applied
type MigrationRecord struct {
	ID        int
	Name      string
	AppliedAt time.Time
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{
		db: db,
	}
}

// builtinMigrations returns the full schema history in apply order.
// Migrations ship in the binary so a fresh data directory bootstraps
// without any files on disk.
func builtinMigrations() []Migration {
	return []Migration{
		{
			ID:   1,
			Name: "create_user_profile",
			SQL: `
			CREATE TABLE IF NOT EXISTS user_profile (
				user_id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				rating REAL NOT NULL DEFAULT 1500,
				wins INTEGER NOT NULL DEFAULT 0,
				loses INTEGER NOT NULL DEFAULT 0,
				is_admin INTEGER NOT NULL DEFAULT 0,
				avatar_url TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_user_profile_rating ON user_profile(rating);
			`,
		},
		{
			ID:   2,
			Name: "create_subjects",
			SQL: `
			CREATE TABLE IF NOT EXISTS subjects (
				id INTEGER PRIMARY KEY,
				title TEXT NOT NULL UNIQUE,
				body TEXT NOT NULL
			);
			`,
		},
		{
			ID:   3,
			Name: "create_battles",
			SQL: `
			CREATE TABLE IF NOT EXISTS battles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				player1 TEXT NOT NULL,
				player2 TEXT NOT NULL,
				subject_id INTEGER NOT NULL,
				winner_id TEXT,
				log_json TEXT NOT NULL DEFAULT '[]',
				verdict_json TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (subject_id) REFERENCES subjects(id)
			);
			CREATE INDEX IF NOT EXISTS idx_battles_created_at ON battles(created_at);
			`,
		},
		{
			ID:   4,
			Name: "seed_subjects",
			SQL:  seedSubjectsSQL(),
		},
	}
}

// seedSubjectsSQL builds an idempotent insert for the built-in debate
// subjects. The UNIQUE constraint on title makes re-runs a no-op.
func seedSubjectsSQL() string {
	var b strings.Builder
	for _, s := range BuiltinSubjects() {
		b.WriteString(fmt.Sprintf(
			"INSERT OR IGNORE INTO subjects (id, title, body) VALUES (%d, '%s', '%s');\n",
			s.ID,
			strings.ReplaceAll(s.Title, "'", "''"),
			strings.ReplaceAll(s.Body, "'", "''"),
		))
	}
	return b.String()
}

// Initialize creates the migrations table if it doesn't exist
func (m *MigrationManager) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := m.db.Exec(query)
	return err
}

// GetAppliedMigrations returns a list of migrations that have been applied
func (m *MigrationManager) GetAppliedMigrations() ([]MigrationRecord, error) {
	rows, err := m.db.Query("SELECT id, name, applied_at FROM migrations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %v", err)
	}
	defer rows.Close()

	var migrations []MigrationRecord
	for rows.Next() {
		var migration MigrationRecord
		err := rows.Scan(&migration.ID, &migration.Name, &migration.AppliedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %v", err)
		}
		migrations = append(migrations, migration)
	}

	return migrations, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	// Apply the migration
	_, err = tx.Exec(migration.SQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to apply migration %d_%s: %v", migration.ID, migration.Name, err)
	}

	// Record the migration
	_, err = tx.Exec("INSERT INTO migrations (id, name) VALUES (?, ?)", migration.ID, migration.Name)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d_%s: %v", migration.ID, migration.Name, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp() error {
	err := m.Initialize()
	if err != nil {
		return fmt.Errorf("failed to initialize migrations table: %v", err)
	}

	appliedMigrations, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}

	// Create a map of applied migration IDs for quick lookup
	appliedMap := make(map[int]bool)
	for _, migration := range appliedMigrations {
		appliedMap[migration.ID] = true
	}

	// Apply pending migrations
	for _, migration := range builtinMigrations() {
		if appliedMap[migration.ID] {
			continue
		}
		err := m.ApplyMigration(migration)
		if err != nil {
			return err
		}
		logging.LogDatabaseEvent("migration_applied", "migrations", map[string]interface{}{
			"id":   migration.ID,
			"name": migration.Name,
		})
	}

	return nil
}
