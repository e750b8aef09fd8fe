package entity

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/medication-tracker/internal/infrastructure/database"
	"github.com/nerrad567/medication-tracker/migrations"
)

// openTestDB returns a migrated in-memory database.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// insertConfigEntry satisfies the entity_registry foreign key.
func insertConfigEntry(t *testing.T, db *database.DB, entryID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO config_entries (entry_id, domain, kind, title, created_at, updated_at)
		 VALUES (?, 'medication_tracker', 'medication', ?, ?, ?)`,
		entryID, entryID, now, now,
	)
	if err != nil {
		t.Fatalf("inserting config entry: %v", err)
	}
}
