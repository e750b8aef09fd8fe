package configentry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/medication-tracker/internal/infrastructure/database"
	"github.com/nerrad567/medication-tracker/migrations"
)

const testDomain = "medication_tracker"

type fakeHandler struct {
	mu       sync.Mutex
	failFor  map[string]error
	panicFor map[string]bool
	calls    []string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{failFor: map[string]error{}, panicFor: map[string]bool{}}
}

func (h *fakeHandler) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *fakeHandler) SetupEntry(ctx context.Context, e Entry) error {
	h.record("setup:" + e.Title)
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.panicFor[e.Title] {
		panic("broken entry")
	}
	return h.failFor[e.Title]
}

func (h *fakeHandler) UnloadEntry(ctx context.Context, e Entry) error {
	h.record("unload:" + e.Title)
	return ctx.Err()
}

func (h *fakeHandler) RemoveEntry(_ context.Context, e Entry) error {
	h.record("remove:" + e.Title)
	return nil
}

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func medicationData(name string) map[string]any {
	return map[string]any{"name": name, "initial_stock": 30.0, "pills_per_dose": 1.0, "doses_per_day": 1.0}
}

func TestManager_AddSetsUp(t *testing.T) {
	h := newFakeHandler()
	m := NewManager(testDomain, openTestRepo(t), h)

	e, err := m.Add(context.Background(), KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)

	assert.NotEmpty(t, e.EntryID)
	assert.Equal(t, StateLoaded, e.State)
	assert.Equal(t, []string{"setup:Aspirin"}, h.calls)
}

func TestManager_AddValidates(t *testing.T) {
	m := NewManager(testDomain, openTestRepo(t), newFakeHandler())

	_, err := m.Add(context.Background(), Kind("pump"), "X", nil)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = m.Add(context.Background(), KindMedication, " ", nil)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestManager_SetupFailureIsIsolated(t *testing.T) {
	h := newFakeHandler()
	h.failFor["Broken"] = errors.New("bad data")
	h.panicFor["Exploding"] = true
	m := NewManager(testDomain, openTestRepo(t), h)
	ctx := context.Background()

	broken, err := m.Add(ctx, KindMedication, "Broken", nil)
	require.NoError(t, err)
	exploding, err := m.Add(ctx, KindMedication, "Exploding", nil)
	require.NoError(t, err)
	good, err := m.Add(ctx, KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)

	assert.Equal(t, StateSetupError, broken.State)
	assert.Equal(t, "bad data", broken.Reason)
	assert.Equal(t, StateSetupError, exploding.State)
	assert.Contains(t, exploding.Reason, "panicked")
	assert.Equal(t, StateLoaded, good.State)
}

func TestManager_UpdateOptionsReloads(t *testing.T) {
	h := newFakeHandler()
	m := NewManager(testDomain, openTestRepo(t), h)
	ctx := context.Background()

	e, err := m.Add(ctx, KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)

	updated, err := m.UpdateOptions(ctx, e.EntryID, map[string]any{"doses_per_day": 2.0})
	require.NoError(t, err)

	assert.Equal(t, 2.0, updated.Options["doses_per_day"])
	assert.Equal(t, StateLoaded, updated.State)
	assert.Equal(t, []string{"setup:Aspirin", "unload:Aspirin", "setup:Aspirin"}, h.calls)

	_, err = m.UpdateOptions(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestManager_ReloadOutlivesCancelledCaller(t *testing.T) {
	h := newFakeHandler()
	m := NewManager(testDomain, openTestRepo(t), h)

	e, err := m.Add(context.Background(), KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reloaded, err := m.Reload(ctx, e.EntryID)
	require.NoError(t, err)

	assert.Equal(t, StateLoaded, reloaded.State)
	assert.Empty(t, reloaded.Reason)
	assert.Equal(t, []string{"setup:Aspirin", "unload:Aspirin", "setup:Aspirin"}, h.calls)
}

func TestManager_Remove(t *testing.T) {
	h := newFakeHandler()
	repo := openTestRepo(t)
	m := NewManager(testDomain, repo, h)
	ctx := context.Background()

	e, err := m.Add(ctx, KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)

	require.NoError(t, m.Remove(ctx, e.EntryID))
	assert.Equal(t, []string{"setup:Aspirin", "unload:Aspirin", "remove:Aspirin"}, h.calls)

	_, err = m.Get(e.EntryID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = repo.Get(ctx, e.EntryID)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	assert.ErrorIs(t, m.Remove(ctx, e.EntryID), ErrEntryNotFound)
}

func TestManager_LoadRestoresEntries(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first := NewManager(testDomain, repo, newFakeHandler())
	_, err := first.Add(ctx, KindGroup, "Morning", map[string]any{"name": "Morning", "members": []any{"number.a"}})
	require.NoError(t, err)
	med, err := first.Add(ctx, KindMedication, "Aspirin", medicationData("Aspirin"))
	require.NoError(t, err)
	_, err = first.UpdateOptions(ctx, med.EntryID, map[string]any{"low_stock_days": 10.0})
	require.NoError(t, err)

	h := newFakeHandler()
	second := NewManager(testDomain, repo, h)
	require.NoError(t, second.Load(ctx))

	assert.Len(t, second.List(), 2)
	assert.Equal(t, []string{"setup:Aspirin", "setup:Morning"}, h.calls, "medications load before groups")

	got, err := second.Get(med.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Options["low_stock_days"])
	assert.Equal(t, "Aspirin", got.Data["name"])
}

func TestManager_Shutdown(t *testing.T) {
	h := newFakeHandler()
	h.failFor["Broken"] = errors.New("bad")
	m := NewManager(testDomain, openTestRepo(t), h)
	ctx := context.Background()

	_, _ = m.Add(ctx, KindMedication, "Aspirin", nil)
	_, _ = m.Add(ctx, KindMedication, "Broken", nil)
	h.calls = nil

	m.Shutdown(ctx)
	assert.Equal(t, []string{"unload:Aspirin"}, h.calls)
}
