package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/medication-tracker/internal/infrastructure/database"
	"github.com/nerrad567/medication-tracker/migrations"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	logs := []Log{
		{Action: ActionServiceCall, Target: "number.aspirin_current_stock", Subject: "kitchen", Source: SourceAPI, Result: ResultOK,
			Details: map[string]any{"service": "take_dose"}, CreatedAt: base},
		{Action: ActionServiceCall, Target: "number.aspirin_current_stock", Source: SourceMQTT, Result: ResultError,
			Details: map[string]any{"error": "duplicate dose"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionEntryRemove, Target: "entry-1", Subject: "admin", Source: SourceAPI, Result: ResultOK, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range logs {
		require.NoError(t, repo.Create(ctx, &logs[i]))
		assert.NotEmpty(t, logs[i].ID)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultListLimit, all.Limit)
	require.Len(t, all.Logs, 3)
	assert.Equal(t, ActionEntryRemove, all.Logs[0].Action, "newest first")
	assert.Equal(t, "take_dose", all.Logs[2].Details["service"])
	assert.True(t, all.Logs[2].CreatedAt.Equal(base))

	calls, err := repo.List(ctx, Filter{Action: ActionServiceCall, Target: "number.aspirin_current_stock"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls.Total)

	bySubject, err := repo.List(ctx, Filter{Subject: "kitchen"})
	require.NoError(t, err)
	require.Len(t, bySubject.Logs, 1)
	assert.Equal(t, SourceAPI, bySubject.Logs[0].Source)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, ResultError, page.Logs[0].Result)
}

func TestListClampsLimit(t *testing.T) {
	repo := newRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.NotNil(t, res.Logs)
}

func TestPrune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	old := Log{Action: ActionEntryCreate, Source: SourceAPI, Result: ResultOK, CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := Log{Action: ActionEntryCreate, Source: SourceAPI, Result: ResultOK}
	require.NoError(t, repo.Create(ctx, &old))
	require.NoError(t, repo.Create(ctx, &recent))

	n, err := repo.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, recent.ID, res.Logs[0].ID)
}

type failingRepo struct {
	Repository
}

func (failingRepo) Create(context.Context, *Log) error { return errors.New("disk full") }

func TestRecorder(t *testing.T) {
	repo := newRepo(t)
	rec := NewRecorder(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Log{Action: ActionServiceCall, Source: SourceAPI, Result: ResultOf(nil)})

	res, err := rec.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, res.Logs, 1, "cancelled request context must not drop the entry")
	assert.Equal(t, ResultOK, res.Logs[0].Result)

	assert.NotPanics(t, func() {
		NewRecorder(failingRepo{}, nil).Record(context.Background(), Log{Action: ActionServiceCall})
		var nilRecorder *Recorder
		nilRecorder.Record(context.Background(), Log{})
	})
	assert.Equal(t, ResultError, ResultOf(errors.New("x")))
}
