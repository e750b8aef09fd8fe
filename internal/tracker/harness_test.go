package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/device"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/database"
	"github.com/nerrad567/medication-tracker/internal/medication"
	"github.com/nerrad567/medication-tracker/migrations"
)

type harness struct {
	db       *database.DB
	loop     *entity.Loop
	states   *entity.StateMachine
	entities *entity.Registry
	restore  *entity.RestoreStore
	index    *Index
	tracker  *Integration
	entries  *configentry.Manager
	services *Services
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return db
}

// newHarness wires the full entity stack over db, the way main does.
func newHarness(t *testing.T, db *database.DB) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		db:       db,
		loop:     entity.NewLoop(),
		states:   entity.NewStateMachine(),
		entities: entity.NewRegistry(entity.NewSQLiteRepository(db.DB)),
		restore:  entity.NewRestoreStore(entity.NewSQLiteRestoreRepository(db.DB)),
		index:    NewIndex(),
	}
	go h.loop.Run(ctx) //nolint:errcheck // first Run never fails
	t.Cleanup(func() {
		cancel()
		<-h.loop.Done()
	})

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	require.NoError(t, devices.RefreshCache(ctx))
	require.NoError(t, h.entities.RefreshCache(ctx))
	require.NoError(t, h.restore.Load(ctx))

	h.states.Listen(func(ev entity.Event) {
		if ev.New != nil {
			h.restore.Record(*ev.New)
		}
	})

	integration := NewIntegration(Deps{
		Loop:          h.loop,
		States:        h.states,
		Entities:      h.entities,
		Devices:       devices,
		Restore:       h.restore,
		Index:         h.index,
		Guard:         medication.CooldownGuard{Cooldown: time.Hour},
		RetryInterval: 10 * time.Millisecond,
	})
	h.tracker = integration
	h.entries = configentry.NewManager(Domain, configentry.NewSQLiteRepository(db.DB), integration)
	require.NoError(t, h.entries.Load(context.Background()))
	h.services = NewServices(h.loop, h.index, nil, nil)
	return h
}

func (h *harness) addMedication(t *testing.T, name string, stock, perDose, perDay float64) configentry.Entry {
	t.Helper()
	e, err := h.entries.Add(context.Background(), configentry.KindMedication, name, map[string]any{
		medication.KeyName:         name,
		medication.KeyInitialStock: stock,
		medication.KeyPillsPerDose: perDose,
		medication.KeyDosesPerDay:  perDay,
	})
	require.NoError(t, err)
	require.Equal(t, configentry.StateLoaded, e.State, e.Reason)
	return e
}

// state reads an entity state through the loop so it observes every
// write queued before it.
func (h *harness) state(t *testing.T, entityID string) *entity.State {
	t.Helper()
	var st *entity.State
	require.NoError(t, h.loop.Call(context.Background(), func() error {
		st, _ = h.states.Get(entityID)
		return nil
	}))
	return st
}
