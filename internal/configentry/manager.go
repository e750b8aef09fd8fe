package configentry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Handler is implemented by the integration that owns the entries.
type Handler interface {
	// SetupEntry brings an entry's entities up. An error marks the entry
	// setup_error and is not propagated to other entries.
	SetupEntry(ctx context.Context, e Entry) error

	// UnloadEntry tears an entry's entities down, keeping their
	// registrations so a later setup reuses the same entity ids.
	UnloadEntry(ctx context.Context, e Entry) error

	// RemoveEntry deletes whatever the integration persisted for the entry.
	// It is called after UnloadEntry.
	RemoveEntry(ctx context.Context, e Entry) error
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns the set of config entries of one domain.
//
// Lifecycle operations are serialised by an internal lock; reads are
// served from memory.
type Manager struct {
	domain  string
	repo    Repository
	handler Handler
	logger  Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewManager creates a manager for domain's entries.
func NewManager(domain string, repo Repository, handler Handler) *Manager {
	return &Manager{
		domain:  domain,
		repo:    repo,
		handler: handler,
		logger:  noopLogger{},
		entries: make(map[string]Entry),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Load reads persisted entries and sets each of them up. Individual setup
// failures are recorded on the entry; only a repository failure is
// returned.
func (m *Manager) Load(ctx context.Context) error {
	entries, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading config entries: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Medications first so groups see their members.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Kind == KindMedication && entries[j].Kind != KindMedication
	})

	for _, e := range entries {
		if e.Domain != m.domain {
			continue
		}
		m.entries[e.EntryID] = e
		m.setupLocked(ctx, e.EntryID)
	}

	m.logger.Info("config entries loaded", "count", len(m.entries))
	return nil
}

// Add creates, persists and sets up a new entry. The returned entry's
// State tells whether setup succeeded.
func (m *Manager) Add(ctx context.Context, kind Kind, title string, data map[string]any) (Entry, error) {
	if kind != KindMedication && kind != KindGroup {
		return Entry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, kind)
	}
	if strings.TrimSpace(title) == "" {
		return Entry{}, fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}

	e := Entry{
		EntryID: uuid.NewString(),
		Domain:  m.domain,
		Kind:    kind,
		Title:   title,
		Data:    maps.Clone(data),
		Options: map[string]any{},
		State:   StateNotLoaded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Create(ctx, &e); err != nil {
		return Entry{}, fmt.Errorf("creating config entry: %w", err)
	}
	m.entries[e.EntryID] = e
	m.logger.Info("config entry created", "entry_id", e.EntryID, "kind", kind, "title", title)

	// The entry is committed; set it up even if the caller has gone away.
	m.setupLocked(context.WithoutCancel(ctx), e.EntryID)
	return m.entries[e.EntryID].Clone(), nil
}

// Get returns an entry by id.
func (m *Manager) Get(entryID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	return e.Clone(), nil
}

// List returns every entry ordered by creation time.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateOptions replaces an entry's options and reloads it so the new
// values take effect.
func (m *Manager) UpdateOptions(ctx context.Context, entryID string, options map[string]any) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if err := m.repo.UpdateOptions(ctx, entryID, options); err != nil {
		return Entry{}, fmt.Errorf("saving options: %w", err)
	}
	e.Options = maps.Clone(options)
	m.entries[entryID] = e
	m.logger.Info("config entry options updated", "entry_id", entryID)

	ctx = context.WithoutCancel(ctx)
	m.unloadLocked(ctx, entryID)
	m.setupLocked(ctx, entryID)
	return m.entries[entryID].Clone(), nil
}

// Reload unloads and sets up an entry again.
func (m *Manager) Reload(ctx context.Context, entryID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entryID]; !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	ctx = context.WithoutCancel(ctx)
	m.unloadLocked(ctx, entryID)
	m.setupLocked(ctx, entryID)
	return m.entries[entryID].Clone(), nil
}

// Remove unloads an entry, lets the handler clean up, and deletes it.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	ctx = context.WithoutCancel(ctx)
	m.unloadLocked(ctx, entryID)
	if err := m.handler.RemoveEntry(ctx, e); err != nil {
		m.logger.Warn("config entry cleanup failed", "entry_id", entryID, "error", err)
	}
	if err := m.repo.Delete(ctx, entryID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	delete(m.entries, entryID)

	m.logger.Info("config entry removed", "entry_id", entryID, "title", e.Title)
	return nil
}

// Shutdown unloads every loaded entry without changing what is persisted.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.State == StateLoaded {
			if err := m.handler.UnloadEntry(ctx, e); err != nil {
				m.logger.Warn("config entry unload failed", "entry_id", id, "error", err)
			}
		}
	}
}

func (m *Manager) setupLocked(ctx context.Context, entryID string) {
	e := m.entries[entryID]

	state, reason := StateLoaded, ""
	if err := m.safeSetup(ctx, e); err != nil {
		state, reason = StateSetupError, err.Error()
		m.logger.Error("config entry setup failed",
			"entry_id", entryID,
			"title", e.Title,
			"error", err,
		)
	}
	m.setStateLocked(ctx, entryID, state, reason)
}

// safeSetup converts a panicking setup into an error so one broken entry
// cannot stop the others from loading.
func (m *Manager) safeSetup(ctx context.Context, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("setup panicked: %v", r)
		}
	}()
	return m.handler.SetupEntry(ctx, e.Clone())
}

func (m *Manager) unloadLocked(ctx context.Context, entryID string) {
	e := m.entries[entryID]
	if e.State != StateLoaded {
		return
	}
	if err := m.handler.UnloadEntry(ctx, e.Clone()); err != nil {
		m.logger.Warn("config entry unload failed", "entry_id", entryID, "error", err)
	}
	m.setStateLocked(ctx, entryID, StateNotLoaded, "")
}

func (m *Manager) setStateLocked(ctx context.Context, entryID string, state State, reason string) {
	e := m.entries[entryID]
	e.State, e.Reason = state, reason
	m.entries[entryID] = e
	if err := m.repo.UpdateState(ctx, entryID, state, reason); err != nil {
		m.logger.Warn("persisting config entry state failed", "entry_id", entryID, "error", err)
	}
}
