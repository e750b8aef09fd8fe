package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	ID         int64          `json:"id"`
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
	Context    string         `json:"context_id,omitempty"`
	ChangedAt  time.Time      `json:"changed_at"`
}

// HistoryRepository stores and retrieves entity state history. For stock
// entities this is the dose and refill log.
type HistoryRepository interface {
	// Record appends st to the history of its entity.
	Record(ctx context.Context, st State) error

	// GetHistory returns up to limit entries for entityID, newest first.
	GetHistory(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than olderThan and returns how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on state_history.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteHistoryRepository creates a history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, now: time.Now}
}

// Record inserts a history row for st.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, st State) error {
	if st.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	attrs, err := json.Marshal(nonNilAttributes(st.Attributes))
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	changedAt := st.LastUpdated
	if changedAt.IsZero() {
		changedAt = r.now()
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (entity_id, state, attributes, context, changed_at) VALUES (?, ?, ?, ?, ?)",
		st.EntityID, st.State, string(attrs), st.Context, formatTimestamp(changedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for entityID (default 50, max 500).
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_id, state, attributes, context, changed_at
		FROM state_history
		WHERE entity_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`,
		entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e         HistoryEntry
			attrs     string
			changedAt string
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &e.State, &attrs, &e.Context, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
		if e.ChangedAt, err = parseTimestamp(changedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes history older than olderThan.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTimestamp(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE changed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
