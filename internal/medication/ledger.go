package medication

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Stock entity attribute keys.
const (
	AttrPillsPerDose     = "pills_per_dose"
	AttrDosesPerDay      = "doses_per_day"
	AttrDailyConsumption = "daily_consumption"
	AttrLowStockDays     = "low_stock_days"
	AttrRefillAmount     = "refill_amount"
	AttrMedicationName   = "medication_name"
	AttrLastTaken        = "last_taken"
)

// Accepted range of a manually set quantity.
var (
	MinQuantity = decimal.Zero
	MaxQuantity = decimal.NewFromInt(10000)
)

// Reading is what a ledger publishes after every change.
type Reading struct {
	Quantity   decimal.Decimal
	Attributes map[string]any
}

// Snapshot is the last persisted state of a stock entity.
type Snapshot struct {
	State      string
	Attributes map[string]any
}

// Ledger holds the pill count of one medication.
//
// Every mutation that succeeds publishes a Reading; rejected operations
// leave the quantity untouched and publish nothing. The quantity never
// goes negative.
type Ledger struct {
	uniqueID string
	settings Settings
	guard    DoseGuard
	now      func() time.Time
	publish  func(Reading)

	mu       sync.RWMutex
	quantity decimal.Decimal
	lastDose time.Time
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithPublisher sets the callback that receives every Reading.
func WithPublisher(fn func(Reading)) LedgerOption {
	return func(l *Ledger) { l.publish = fn }
}

// NewLedger creates a ledger starting at the configured initial stock.
func NewLedger(uniqueID string, settings Settings, guard DoseGuard, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		uniqueID: uniqueID,
		settings: settings,
		guard:    guard,
		now:      time.Now,
		publish:  func(Reading) {},
		quantity: settings.InitialStock,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// UniqueID identifies the ledger across restarts.
func (l *Ledger) UniqueID() string { return l.uniqueID }

// Settings returns the medication parameters.
func (l *Ledger) Settings() Settings { return l.settings }

// Quantity returns the current pill count.
func (l *Ledger) Quantity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quantity
}

// LastDose returns when the last accepted dose was taken, if ever.
func (l *Ledger) LastDose() (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastDose, !l.lastDose.IsZero()
}

// Reading returns the current published view.
func (l *Ledger) Reading() Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.readingLocked()
}

func (l *Ledger) readingLocked() Reading {
	attrs := map[string]any{
		AttrPillsPerDose:     float(l.settings.PillsPerDose),
		AttrDosesPerDay:      float(l.settings.DosesPerDay),
		AttrDailyConsumption: float(l.settings.DailyConsumption()),
		AttrLowStockDays:     l.settings.LowStockDays,
		AttrRefillAmount:     l.settings.RefillAmount,
		AttrMedicationName:   l.settings.Name,
	}
	if !l.lastDose.IsZero() {
		attrs[AttrLastTaken] = l.lastDose.Format(time.RFC3339)
	}
	return Reading{Quantity: l.quantity, Attributes: attrs}
}

// commit applies fn under the lock and publishes the result.
func (l *Ledger) commit(fn func()) {
	l.mu.Lock()
	fn()
	r := l.readingLocked()
	l.mu.Unlock()
	l.publish(r)
}

// SetQuantity replaces the pill count with value.
func (l *Ledger) SetQuantity(value any) error {
	q, err := ToDecimal(value)
	if err != nil {
		return err
	}
	if q.LessThan(MinQuantity) || q.GreaterThan(MaxQuantity) {
		return fmt.Errorf("%w: %s is outside [%s, %s]", ErrInvalidValue, q, MinQuantity, MaxQuantity)
	}

	l.commit(func() { l.quantity = q })
	return nil
}

// TakeDose subtracts one dose, clamping at zero, unless the dose guard
// rejects it.
func (l *Ledger) TakeDose() error {
	now := l.now()

	l.mu.Lock()
	if !l.lastDose.IsZero() && !l.guard.Allow(l.lastDose, now) {
		last := l.lastDose
		l.mu.Unlock()
		return fmt.Errorf("%w: last dose at %s (%s guard)", ErrDuplicateDose, last.Format(time.RFC3339), l.guard.Name())
	}
	l.quantity = decimal.Max(decimal.Zero, l.quantity.Sub(l.settings.PillsPerDose))
	l.lastDose = now
	r := l.readingLocked()
	l.mu.Unlock()

	l.publish(r)
	return nil
}

// AddStock adds amount pills. Amounts of zero or less are ignored without
// error and without publishing.
func (l *Ledger) AddStock(amount any) error {
	a, err := ToDecimal(amount)
	if err != nil {
		return err
	}
	if !a.IsPositive() {
		return nil
	}

	l.commit(func() { l.quantity = l.quantity.Add(a) })
	return nil
}

// Restore adopts a persisted snapshot, falling back to the initial stock
// when there is none or its state is not a usable number. It publishes
// the resulting reading.
func (l *Ledger) Restore(snap *Snapshot) {
	l.commit(func() {
		l.quantity = l.settings.InitialStock
		if snap == nil {
			return
		}
		if q, err := ParseState(snap.State); err == nil && !q.IsNegative() {
			l.quantity = q
		}
		if raw, ok := snap.Attributes[AttrLastTaken].(string); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				l.lastDose = t
			}
		}
	})
}
