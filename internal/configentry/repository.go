package configentry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository persists config entries.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, entryID string) (Entry, error)
	Create(ctx context.Context, e *Entry) error
	UpdateOptions(ctx context.Context, entryID string, options map[string]any) error
	UpdateState(ctx context.Context, entryID string, state State, reason string) error
	Delete(ctx context.Context, entryID string) error
}

// SQLiteRepository implements Repository on the config_entries table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed entry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectEntry = `
	SELECT entry_id, domain, kind, title, data, options, state, reason, created_at, updated_at
	FROM config_entries`

// List returns every entry in creation order.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+" ORDER BY created_at, entry_id")
	if err != nil {
		return nil, fmt.Errorf("querying config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return entries, nil
}

// Get returns one entry.
func (r *SQLiteRepository) Get(ctx context.Context, entryID string) (Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+" WHERE entry_id = ?", entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// Create inserts a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(nonNil(e.Data))
	if err != nil {
		return fmt.Errorf("marshalling data: %w", err)
	}
	options, err := json.Marshal(nonNil(e.Options))
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.State == "" {
		e.State = StateNotLoaded
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_entries (entry_id, domain, kind, title, data, options, state, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Domain, string(e.Kind), e.Title, string(data), string(options),
		string(e.State), nullable(e.Reason),
		e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting config entry: %w", err)
	}
	return nil
}

// UpdateOptions replaces an entry's options.
func (r *SQLiteRepository) UpdateOptions(ctx context.Context, entryID string, options map[string]any) error {
	raw, err := json.Marshal(nonNil(options))
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE config_entries SET options = ?, updated_at = ? WHERE entry_id = ?",
		string(raw), time.Now().UTC().Format(timeLayout), entryID,
	)
	if err != nil {
		return fmt.Errorf("updating options: %w", err)
	}
	return requireAffected(result)
}

// UpdateState records an entry's lifecycle state.
func (r *SQLiteRepository) UpdateState(ctx context.Context, entryID string, state State, reason string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE config_entries SET state = ?, reason = ?, updated_at = ? WHERE entry_id = ?",
		string(state), nullable(reason), time.Now().UTC().Format(timeLayout), entryID,
	)
	if err != nil {
		return fmt.Errorf("updating state: %w", err)
	}
	return requireAffected(result)
}

// Delete removes an entry. Devices and registry rows cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, entryID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE entry_id = ?", entryID)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                    Entry
		kind, state          string
		data, options        string
		reason               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.EntryID, &e.Domain, &kind, &e.Title, &data, &options,
		&state, &reason, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scanning config entry: %w", err)
	}
	e.Kind = Kind(kind)
	e.State = State(state)
	e.Reason = reason.String

	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return Entry{}, fmt.Errorf("unmarshalling data of %s: %w", e.EntryID, err)
	}
	if err := json.Unmarshal([]byte(options), &e.Options); err != nil {
		return Entry{}, fmt.Errorf("unmarshalling options of %s: %w", e.EntryID, err)
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
