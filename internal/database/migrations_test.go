package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRawDB(t *testing.T) (*sql.DB, func()) {
	tempDir, err := os.MkdirTemp("", "migrations_test")
	require.NoError(t, err)

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}
	return db, cleanup
}

func TestMigrationManagerInitialize(t *testing.T) {
	db, cleanup := setupRawDB(t)
	defer cleanup()

	manager := NewMigrationManager(db)
	err := manager.Initialize()
	assert.NoError(t, err)

	// Check if the migrations table exists
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='migrations'").Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	// Initialize is idempotent
	assert.NoError(t, manager.Initialize())
}

func TestBuiltinMigrationsAreOrdered(t *testing.T) {
	migrations := builtinMigrations()
	require.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	last := 0
	for _, m := range migrations {
		assert.Greater(t, m.ID, last, "migration IDs must be strictly increasing")
		assert.False(t, seen[m.ID], "migration ID %d duplicated", m.ID)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.SQL)
		seen[m.ID] = true
		last = m.ID
	}
}

func TestApplyMigrationRecordsIt(t *testing.T) {
	db, cleanup := setupRawDB(t)
	defer cleanup()

	manager := NewMigrationManager(db)
	require.NoError(t, manager.Initialize())

	migration := Migration{
		ID:   1,
		Name: "create_test_table",
		SQL:  "CREATE TABLE test (id INTEGER PRIMARY KEY);",
	}
	require.NoError(t, manager.ApplyMigration(migration))

	applied, err := manager.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, 1, applied[0].ID)
	assert.Equal(t, "create_test_table", applied[0].Name)
}

func TestApplyMigrationRollsBackOnError(t *testing.T) {
	db, cleanup := setupRawDB(t)
	defer cleanup()

	manager := NewMigrationManager(db)
	require.NoError(t, manager.Initialize())

	bad := Migration{ID: 1, Name: "broken", SQL: "NOT VALID SQL"}
	assert.Error(t, manager.ApplyMigration(bad))

	applied, err := manager.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Empty(t, applied, "failed migration must not be recorded")
}

func TestMigrateUpAppliesAllAndSkipsApplied(t *testing.T) {
	db, cleanup := setupRawDB(t)
	defer cleanup()

	manager := NewMigrationManager(db)
	require.NoError(t, manager.MigrateUp())

	applied, err := manager.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, applied, len(builtinMigrations()))

	// Second run is a no-op
	require.NoError(t, manager.MigrateUp())

	again, err := manager.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, again, len(applied))
}

func TestSeedSubjectsSQLEscapesQuotes(t *testing.T) {
	sql := seedSubjectsSQL()
	assert.Contains(t, sql, "INSERT OR IGNORE INTO subjects")
	for _, s := range BuiltinSubjects() {
		assert.Contains(t, sql, s.Title)
	}
}
