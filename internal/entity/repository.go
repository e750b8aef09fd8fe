package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrEntityExists is returned when an entity id or unique id is taken.
var ErrEntityExists = errors.New("entity: already registered")

// Repository persists entity registry entries.
type Repository interface {
	// List returns all entries.
	List(ctx context.Context) ([]Entry, error)

	// Create inserts an entry. Returns ErrEntityExists on conflict.
	Create(ctx context.Context, e *Entry) error

	// Delete removes one entry. Returns ErrEntityNotFound if absent.
	Delete(ctx context.Context, entityID string) error

	// DeleteByConfigEntry removes every entry owned by a config entry.
	DeleteByConfigEntry(ctx context.Context, configEntryID string) error
}

// SQLiteRepository implements Repository on the entity_registry table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed registry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns all entries ordered by entity id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, domain, platform, unique_id, config_entry_id,
			device_id, original_name, created_at
		FROM entity_registry
		ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("querying entity registry: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			configEntryID sql.NullString
			deviceID      sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&e.EntityID, &e.Domain, &e.Platform, &e.UniqueID,
			&configEntryID, &deviceID, &e.OriginalName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning entity registry: %w", err)
		}
		e.ConfigEntryID = configEntryID.String
		e.DeviceID = deviceID.String
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity registry: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entity_registry (
			entity_id, domain, platform, unique_id, config_entry_id,
			device_id, original_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntityID, e.Domain, e.Platform, e.UniqueID,
		nullable(e.ConfigEntryID), nullable(e.DeviceID),
		e.OriginalName, formatTimestamp(e.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrEntityExists, e.EntityID)
		}
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// Delete removes an entry by entity id.
func (r *SQLiteRepository) Delete(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entity_registry WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// DeleteByConfigEntry removes all entries of a config entry.
func (r *SQLiteRepository) DeleteByConfigEntry(ctx context.Context, configEntryID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM entity_registry WHERE config_entry_id = ?", configEntryID); err != nil {
		return fmt.Errorf("deleting entities of config entry: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}
