package medication

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu      sync.Mutex
	entries map[string]string
	lookups int
}

func (d *fakeDirectory) Resolve(domain, platform, uniqueID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	id, ok := d.entries[domain+"/"+platform+"/"+uniqueID]
	return id, ok
}

func (d *fakeDirectory) register(uniqueID, entityID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[StockDomain+"/"+Platform+"/"+uniqueID] = entityID
}

type fakeSource struct {
	states   map[string]string
	trackers map[string][]func(string, bool)
	untracks int
}

func newFakeSource() *fakeSource {
	return &fakeSource{states: map[string]string{}, trackers: map[string][]func(string, bool){}}
}

func (s *fakeSource) Current(entityID string) (string, bool) {
	v, ok := s.states[entityID]
	return v, ok
}

func (s *fakeSource) Track(entityID string, fn func(string, bool)) func() {
	s.trackers[entityID] = append(s.trackers[entityID], fn)
	return func() {
		s.untracks++
		delete(s.trackers, entityID)
	}
}

func (s *fakeSource) set(entityID, state string) {
	s.states[entityID] = state
	for _, fn := range s.trackers[entityID] {
		fn(state, true)
	}
}

// fakeScheduler records timers and fires them on demand.
type fakeScheduler struct {
	pending []*fakeTimer
}

type fakeTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := &fakeTimer{d: d, fn: fn}
	s.pending = append(s.pending, t)
	return func() { t.cancelled = true }
}

// fire runs every timer queued so far, including cancelled ones when
// ignoreCancel is set, simulating a callback already in the loop queue.
func (s *fakeScheduler) fire(ignoreCancel bool) int {
	queued := s.pending
	s.pending = nil
	ran := 0
	for _, t := range queued {
		if t.cancelled && !ignoreCancel {
			continue
		}
		t.fn()
		ran++
	}
	return ran
}

type estimatorHarness struct {
	dir       *fakeDirectory
	source    *fakeSource
	sched     *fakeScheduler
	est       *Estimator
	published []Estimate
}

func newEstimatorHarness(t *testing.T, s Settings) *estimatorHarness {
	t.Helper()
	h := &estimatorHarness{
		dir:    &fakeDirectory{entries: map[string]string{}},
		source: newFakeSource(),
		sched:  &fakeScheduler{},
	}
	h.est = NewEstimator(EstimatorConfig{
		StockUniqueID: "entry1" + StockSuffix,
		Settings:      s,
		Directory:     h.dir,
		Source:        h.source,
		Scheduler:     h.sched,
		RetryInterval: 2 * time.Second,
		Publish:       func(e Estimate) { h.published = append(h.published, e) },
	})
	return h
}

func (h *estimatorHarness) last() Estimate {
	return h.published[len(h.published)-1]
}

func TestEstimator_LinksImmediately(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "2"))
	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	h.source.states["number.aspirin_current_stock"] = "60"

	h.est.Start()

	assert.Equal(t, Linked, h.est.State())
	assert.Equal(t, "number.aspirin_current_stock", h.est.StockEntityID())
	assert.Empty(t, h.sched.pending)

	require.Len(t, h.published, 2)
	assert.False(t, h.published[0].Known, "initial estimate is unknown")

	got := h.last()
	require.True(t, got.Known)
	assert.Equal(t, "30", got.Days.String())
	assert.False(t, got.LowStock)
	assert.Equal(t, 60.0, got.Attributes[AttrStockLevel])
	assert.Equal(t, 2.0, got.Attributes[AttrDailyConsumption])
	assert.Equal(t, 7, got.Attributes[AttrLowStockThresholdDays])
	assert.Equal(t, false, got.Attributes[AttrIsLowStock])
}

func TestEstimator_RetriesUntilRegistered(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "2"))

	h.est.Start()
	assert.Equal(t, Unlinked, h.est.State())
	require.Len(t, h.sched.pending, 1)
	assert.Equal(t, 2*time.Second, h.sched.pending[0].d)

	h.sched.fire(false)
	assert.Equal(t, Unlinked, h.est.State())
	require.Len(t, h.sched.pending, 1, "retries are unbounded")

	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	h.source.states["number.aspirin_current_stock"] = "14"
	h.sched.fire(false)

	assert.Equal(t, Linked, h.est.State())
	assert.Empty(t, h.sched.pending)
	assert.Equal(t, "7", h.last().Days.String())
	assert.True(t, h.last().LowStock, "7 days equals the threshold")
	assert.Equal(t, 3, h.dir.lookups)
}

func TestEstimator_RecomputesOnChange(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "3"))
	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	h.source.states["number.aspirin_current_stock"] = "60"
	h.est.Start()

	tests := []struct {
		state    string
		known    bool
		days     string
		lowStock bool
	}{
		{state: "10", known: true, days: "3.33", lowStock: true},
		{state: "20", known: true, days: "6.67", lowStock: true},
		{state: "24", known: true, days: "8", lowStock: false},
		{state: StateUnavailable, known: false},
		{state: "abc", known: false},
		{state: "0", known: true, days: "0", lowStock: true},
	}

	for _, tt := range tests {
		h.source.set("number.aspirin_current_stock", tt.state)
		got := h.last()
		assert.Equal(t, tt.known, got.Known, "state %q", tt.state)
		assert.Equal(t, tt.known, got.QuantityKnown, "state %q", tt.state)
		if !tt.known {
			assert.Nil(t, got.Attributes[AttrStockLevel])
			assert.Equal(t, false, got.Attributes[AttrIsLowStock])
			continue
		}
		assert.Equal(t, tt.days, got.Days.String(), "state %q", tt.state)
		assert.Equal(t, tt.lowStock, got.LowStock, "state %q", tt.state)
	}
}

func TestEstimator_ZeroRateSentinel(t *testing.T) {
	s := testSettings("60", "1", "1")
	s.DosesPerDay = s.DosesPerDay.Sub(s.DosesPerDay)
	h := newEstimatorHarness(t, s)
	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	h.source.states["number.aspirin_current_stock"] = "5"

	h.est.Start()

	got := h.last()
	require.True(t, got.Known)
	assert.True(t, got.Days.Equal(NoConsumptionDays))
	assert.False(t, got.LowStock)
}

func TestEstimator_MissingCurrentState(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "1"))
	h.dir.register("entry1_stock", "number.aspirin_current_stock")

	h.est.Start()

	assert.Equal(t, Linked, h.est.State())
	assert.False(t, h.last().Known)
}

func TestEstimator_CloseWhileUnlinked(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "1"))
	h.est.Start()
	require.Len(t, h.sched.pending, 1)

	h.est.Close()
	assert.Equal(t, Closed, h.est.State())
	assert.True(t, h.sched.pending[0].cancelled)

	// A retry already queued on the loop must be a no-op.
	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	lookups := h.dir.lookups
	h.sched.fire(true)

	assert.Equal(t, Closed, h.est.State())
	assert.Equal(t, lookups, h.dir.lookups)
	assert.Empty(t, h.sched.pending)
}

func TestEstimator_CloseWhileLinked(t *testing.T) {
	h := newEstimatorHarness(t, testSettings("60", "1", "1"))
	h.dir.register("entry1_stock", "number.aspirin_current_stock")
	h.source.states["number.aspirin_current_stock"] = "10"
	h.est.Start()
	count := len(h.published)

	h.est.Close()
	h.est.Close()

	assert.Equal(t, 1, h.source.untracks)
	h.source.set("number.aspirin_current_stock", "3")
	assert.Len(t, h.published, count)
}

func TestLinkState_String(t *testing.T) {
	assert.Equal(t, "unlinked", Unlinked.String())
	assert.Equal(t, "linked", Linked.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "invalid", LinkState(9).String())
}
