package exporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/medication-tracker/internal/entity"
)

// recordingSink remembers every event it is given.
type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []entity.Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Export(_ context.Context, ev entity.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.EntityID
	}
	return out
}

func runExporter(t *testing.T, e *Exporter) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})
	return cancel
}

func TestExporter_FansOutInOrder(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	ok := &recordingSink{name: "ok"}
	e := New(16, nil, failing, ok)

	sm := entity.NewStateMachine()
	detach := e.Attach(sm)
	defer detach()
	runExporter(t, e)

	sm.Set("number.a", "1", nil)
	sm.Set("number.b", "2", nil)
	sm.Remove("number.a")

	want := []string{"number.a", "number.b", "number.a"}
	require.Eventually(t, func() bool { return len(ok.ids()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, ok.ids(), "a failing sink does not stop the next one")
	assert.Equal(t, want, failing.ids())
}

func TestExporter_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	e := New(2, nil, sink)

	for _, id := range []string{"number.a", "number.b", "number.c"} {
		e.Enqueue(entity.Event{EntityID: id})
	}
	assert.Equal(t, uint64(1), e.Dropped())
	assert.Equal(t, 2, e.Pending())

	cancel := runExporter(t, e)
	cancel()
	<-e.Done()
	assert.Equal(t, []string{"number.a", "number.b"}, sink.ids())
}

func TestExporter_DrainsOnCancel(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	e := New(8, nil, sink)
	for _, id := range []string{"number.a", "number.b"} {
		e.Enqueue(entity.Event{EntityID: id})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(ctx)

	assert.Len(t, sink.ids(), 2)
	select {
	case <-e.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestExporter_DetachStopsEvents(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	e := New(8, nil, sink)
	sm := entity.NewStateMachine()

	detach := e.Attach(sm)
	sm.Set("number.a", "1", nil)
	detach()
	sm.Set("number.a", "2", nil)

	assert.Equal(t, 1, e.Pending())
}
