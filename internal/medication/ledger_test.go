package medication

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testSettings(initial, perDose, perDay string) Settings {
	return Settings{
		Name:         "Aspirin",
		InitialStock: decimal.RequireFromString(initial),
		PillsPerDose: decimal.RequireFromString(perDose),
		DosesPerDay:  decimal.RequireFromString(perDay),
		LowStockDays: DefaultLowStockDays,
		RefillAmount: DefaultRefillAmount,
	}
}

func newTestLedger(t *testing.T, s Settings, guard DoseGuard) (*Ledger, *fakeClock, *[]Reading) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	var published []Reading
	l := NewLedger("entry1_stock", s, guard,
		WithClock(clock.Now),
		WithPublisher(func(r Reading) { published = append(published, r) }),
	)
	return l, clock, &published
}

func TestLedger_TakeDose(t *testing.T) {
	l, _, published := newTestLedger(t, testSettings("10", "2", "1"), CooldownGuard{Cooldown: time.Minute})

	require.NoError(t, l.TakeDose())

	assert.Equal(t, "8", l.Quantity().String())
	_, ok := l.LastDose()
	assert.True(t, ok)
	require.Len(t, *published, 1)
	assert.Equal(t, "2026-03-10T08:00:00Z", (*published)[0].Attributes[AttrLastTaken])
}

func TestLedger_TakeDoseClampsAtZero(t *testing.T) {
	l, clock, _ := newTestLedger(t, testSettings("1", "2", "1"), CooldownGuard{Cooldown: time.Minute})

	require.NoError(t, l.TakeDose())
	assert.True(t, l.Quantity().IsZero())

	clock.Advance(time.Hour)
	require.NoError(t, l.TakeDose())
	assert.True(t, l.Quantity().IsZero())
}

func TestLedger_DuplicateDoseRejected(t *testing.T) {
	l, clock, published := newTestLedger(t, testSettings("10", "1", "1"), CooldownGuard{Cooldown: time.Minute})

	require.NoError(t, l.TakeDose())
	first, _ := l.LastDose()

	clock.Advance(30 * time.Second)
	err := l.TakeDose()
	require.ErrorIs(t, err, ErrDuplicateDose)

	assert.Equal(t, "9", l.Quantity().String())
	last, _ := l.LastDose()
	assert.Equal(t, first, last)
	assert.Len(t, *published, 1, "rejected dose publishes nothing")

	clock.Advance(30 * time.Second)
	require.NoError(t, l.TakeDose())
	assert.Equal(t, "8", l.Quantity().String())
}

func TestLedger_DailyGuard(t *testing.T) {
	l, clock, _ := newTestLedger(t, testSettings("10", "1", "1"), DailyGuard{Location: time.UTC})

	require.NoError(t, l.TakeDose())
	clock.Advance(12 * time.Hour)
	assert.ErrorIs(t, l.TakeDose(), ErrDuplicateDose)

	clock.Advance(12 * time.Hour)
	assert.NoError(t, l.TakeDose())
}

func TestLedger_HalfPillDoses(t *testing.T) {
	l, clock, _ := newTestLedger(t, testSettings("1", "0.1", "1"), CooldownGuard{Cooldown: time.Second})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.TakeDose())
		clock.Advance(time.Minute)
	}
	assert.Equal(t, "0.7", l.Quantity().String())
}

func TestLedger_SetQuantity(t *testing.T) {
	l, _, published := newTestLedger(t, testSettings("10", "1", "1"), DailyGuard{})

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "number", value: 25.5},
		{name: "string", value: "40"},
		{name: "upper bound", value: 10000},
		{name: "negative", value: -1, wantErr: true},
		{name: "too large", value: 10001, wantErr: true},
		{name: "word", value: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := l.Quantity()
			count := len(*published)

			err := l.SetQuantity(tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidValue)
				assert.True(t, before.Equal(l.Quantity()))
				assert.Len(t, *published, count)
				return
			}
			require.NoError(t, err)
			want, _ := ToDecimal(tt.value)
			assert.True(t, want.Equal(l.Quantity()))
			assert.Len(t, *published, count+1)
		})
	}
}

func TestLedger_AddStock(t *testing.T) {
	l, _, published := newTestLedger(t, testSettings("10", "1", "1"), DailyGuard{})

	require.NoError(t, l.AddStock(30))
	assert.Equal(t, "40", l.Quantity().String())
	assert.Len(t, *published, 1)

	require.NoError(t, l.AddStock(0))
	require.NoError(t, l.AddStock(-5))
	assert.Equal(t, "40", l.Quantity().String())
	assert.Len(t, *published, 1, "non-positive amounts are ignored")

	assert.ErrorIs(t, l.AddStock("many"), ErrInvalidValue)
}

func TestLedger_Restore(t *testing.T) {
	tests := []struct {
		name     string
		snap     *Snapshot
		want     string
		wantLast bool
	}{
		{name: "no snapshot", snap: nil, want: "60"},
		{name: "numeric", snap: &Snapshot{State: "42"}, want: "42"},
		{name: "unknown", snap: &Snapshot{State: StateUnknown}, want: "60"},
		{name: "unavailable", snap: &Snapshot{State: StateUnavailable}, want: "60"},
		{name: "garbage", snap: &Snapshot{State: "lots"}, want: "60"},
		{
			name: "with last taken",
			snap: &Snapshot{
				State:      "12",
				Attributes: map[string]any{AttrLastTaken: "2026-03-09T07:30:00Z"},
			},
			want:     "12",
			wantLast: true,
		},
		{
			name:     "bad last taken",
			snap:     &Snapshot{State: "12", Attributes: map[string]any{AttrLastTaken: "yesterday"}},
			want:     "12",
			wantLast: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, published := newTestLedger(t, testSettings("60", "1", "2"), DailyGuard{})

			l.Restore(tt.snap)

			assert.Equal(t, tt.want, l.Quantity().String())
			_, ok := l.LastDose()
			assert.Equal(t, tt.wantLast, ok)
			assert.Len(t, *published, 1)
		})
	}
}

func TestLedger_RestoredLastDoseGuardsNextDose(t *testing.T) {
	l, _, _ := newTestLedger(t, testSettings("60", "1", "1"), DailyGuard{Location: time.UTC})

	l.Restore(&Snapshot{State: "30", Attributes: map[string]any{AttrLastTaken: "2026-03-10T06:00:00Z"}})

	assert.ErrorIs(t, l.TakeDose(), ErrDuplicateDose)
	assert.Equal(t, "30", l.Quantity().String())
}

func TestLedger_ReadingAttributes(t *testing.T) {
	l, _, _ := newTestLedger(t, testSettings("60", "0.5", "2"), DailyGuard{})

	attrs := l.Reading().Attributes
	assert.Equal(t, 0.5, attrs[AttrPillsPerDose])
	assert.Equal(t, 2.0, attrs[AttrDosesPerDay])
	assert.Equal(t, 1.0, attrs[AttrDailyConsumption])
	assert.Equal(t, 7, attrs[AttrLowStockDays])
	assert.Equal(t, 30, attrs[AttrRefillAmount])
	assert.Equal(t, "Aspirin", attrs[AttrMedicationName])
	assert.NotContains(t, attrs, AttrLastTaken)
}
