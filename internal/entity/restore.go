package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// RestoreRepository persists the last known state of each entity.
type RestoreRepository interface {
	LoadAll(ctx context.Context) ([]State, error)
	Save(ctx context.Context, s State) error
	Delete(ctx context.Context, entityID string) error
}

// RestoreStore answers "what was this entity's state before?" for entities
// being set up. It is loaded from the repository at startup and kept
// current in memory by Record, so an entity reloaded after an options
// change restores its latest value even before it has been saved.
type RestoreStore struct {
	repo   RestoreRepository
	mu     sync.RWMutex
	states map[string]State
}

// NewRestoreStore creates an empty store backed by repo.
func NewRestoreStore(repo RestoreRepository) *RestoreStore {
	return &RestoreStore{repo: repo, states: make(map[string]State)}
}

// Load reads every persisted state into memory.
func (s *RestoreStore) Load(ctx context.Context) error {
	states, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading restore states: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		s.states[st.EntityID] = st
	}
	return nil
}

// LastState returns the most recent known state of entityID.
func (s *RestoreStore) LastState(entityID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[entityID]
	if !ok {
		return nil, false
	}
	return st.clone(), true
}

// Record remembers st in memory without persisting it.
func (s *RestoreStore) Record(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.EntityID] = *st.clone()
}

// Save writes st to the repository. The in-memory view is left alone:
// callers persisting queued events may hold a state older than the one
// Record has already seen.
func (s *RestoreStore) Save(ctx context.Context, st State) error {
	return s.repo.Save(ctx, st)
}

// Forget drops entityID from memory and the repository.
func (s *RestoreStore) Forget(ctx context.Context, entityID string) error {
	s.mu.Lock()
	delete(s.states, entityID)
	s.mu.Unlock()
	return s.repo.Delete(ctx, entityID)
}

// SQLiteRestoreRepository implements RestoreRepository on restore_states.
type SQLiteRestoreRepository struct {
	db *sql.DB
}

// NewSQLiteRestoreRepository creates a restore repository.
func NewSQLiteRestoreRepository(db *sql.DB) *SQLiteRestoreRepository {
	return &SQLiteRestoreRepository{db: db}
}

// LoadAll returns every persisted state.
func (r *SQLiteRestoreRepository) LoadAll(ctx context.Context) ([]State, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT entity_id, state, attributes, last_changed, last_updated FROM restore_states")
	if err != nil {
		return nil, fmt.Errorf("querying restore states: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var (
			st                       State
			attrs                    string
			lastChanged, lastUpdated string
		)
		if err := rows.Scan(&st.EntityID, &st.State, &attrs, &lastChanged, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scanning restore state: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &st.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes of %s: %w", st.EntityID, err)
		}
		if st.LastChanged, err = parseTimestamp(lastChanged); err != nil {
			return nil, err
		}
		if st.LastUpdated, err = parseTimestamp(lastUpdated); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating restore states: %w", err)
	}
	return states, nil
}

// Save upserts the state of one entity.
func (r *SQLiteRestoreRepository) Save(ctx context.Context, st State) error {
	attrs, err := json.Marshal(nonNilAttributes(st.Attributes))
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO restore_states (entity_id, state, attributes, last_changed, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			state = excluded.state,
			attributes = excluded.attributes,
			last_changed = excluded.last_changed,
			last_updated = excluded.last_updated`,
		st.EntityID, st.State, string(attrs),
		formatTimestamp(st.LastChanged), formatTimestamp(st.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("saving restore state: %w", err)
	}
	return nil
}

// Delete removes the state of one entity. Missing rows are not an error.
func (r *SQLiteRestoreRepository) Delete(ctx context.Context, entityID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM restore_states WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("deleting restore state: %w", err)
	}
	return nil
}

func nonNilAttributes(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
