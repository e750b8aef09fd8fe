package medication

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Sensor entity attribute keys.
const (
	AttrStockLevel            = "stock_level"
	AttrLowStockThresholdDays = "low_stock_threshold_days"
	AttrIsLowStock            = "is_low_stock"
)

// NoConsumptionDays is reported when the daily rate is zero.
var NoConsumptionDays = decimal.NewFromInt(9999)

// DefaultLinkRetry is how long an unlinked estimator waits between lookups.
const DefaultLinkRetry = 2 * time.Second

// Lookup coordinates of a stock entity.
const (
	StockDomain   = "number"
	Platform      = "medication_tracker"
	StockSuffix   = "_stock"
	DaysSuffix    = "_days_remaining"
	SensorDomain  = "sensor"
	daysPrecision = 2
)

// LinkState is the estimator's position in its lifecycle.
type LinkState int

// Link states.
const (
	Unlinked LinkState = iota
	Linked
	Closed
)

func (s LinkState) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linked:
		return "linked"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// Directory resolves a stock entity's public id from its unique id.
type Directory interface {
	Resolve(domain, platform, uniqueID string) (entityID string, ok bool)
}

// StockSource reads and watches the published state of an entity.
type StockSource interface {
	Current(entityID string) (state string, ok bool)
	Track(entityID string, fn func(state string, ok bool)) (untrack func())
}

// Scheduler runs fn after d. Once cancel returns, fn will not start.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Estimate is the estimator's published output.
type Estimate struct {
	// Days is meaningful only when Known.
	Days          decimal.Decimal
	Known         bool
	Quantity      decimal.Decimal
	QuantityKnown bool
	LowStock      bool
	Attributes    map[string]any
}

// EstimatorConfig wires an Estimator to its collaborators.
type EstimatorConfig struct {
	StockUniqueID string
	Settings      Settings
	Directory     Directory
	Source        StockSource
	Scheduler     Scheduler
	RetryInterval time.Duration
	Publish       func(Estimate)
	Logger        Logger
}

// Estimator derives days of supply from a stock entity's published state.
//
// It starts Unlinked and looks the stock entity up in the Directory,
// retrying every RetryInterval until found. Once Linked it recomputes on
// every state change of the stock entity. Close moves it to Closed from
// either state, cancelling the pending retry or the subscription.
//
// All methods except Estimate and State must run on the host event loop.
type Estimator struct {
	cfg  EstimatorConfig
	rate decimal.Decimal

	mu            sync.RWMutex
	state         LinkState
	stockEntityID string
	cancelRetry   func()
	untrack       func()
	estimate      Estimate
}

// NewEstimator returns an Unlinked estimator whose estimate is unknown.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultLinkRetry
	}
	if cfg.Publish == nil {
		cfg.Publish = func(Estimate) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	e := &Estimator{
		cfg:  cfg,
		rate: cfg.Settings.DailyConsumption(),
	}
	e.estimate = e.compute(decimal.Zero, false)
	return e
}

// Start publishes the initial unknown estimate and attempts to link.
func (e *Estimator) Start() {
	e.cfg.Publish(e.Estimate())
	e.tryLink()
}

// State returns the current link state.
func (e *Estimator) State() LinkState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Estimate returns the latest computed estimate.
func (e *Estimator) Estimate() Estimate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.estimate
}

// StockEntityID returns the linked stock entity, empty while unlinked.
func (e *Estimator) StockEntityID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stockEntityID
}

func (e *Estimator) tryLink() {
	e.mu.Lock()
	if e.state != Unlinked {
		e.mu.Unlock()
		return
	}
	e.cancelRetry = nil

	entityID, found := e.cfg.Directory.Resolve(StockDomain, Platform, e.cfg.StockUniqueID)
	if !found {
		e.cancelRetry = e.cfg.Scheduler.AfterFunc(e.cfg.RetryInterval, e.tryLink)
		e.mu.Unlock()
		e.cfg.Logger.Debug("stock entity not registered yet, retrying",
			"unique_id", e.cfg.StockUniqueID,
			"retry_in", e.cfg.RetryInterval,
		)
		return
	}

	e.state = Linked
	e.stockEntityID = entityID
	e.mu.Unlock()

	untrack := e.cfg.Source.Track(entityID, e.onStockChange)

	e.mu.Lock()
	if e.state != Linked {
		// Closed while subscribing.
		e.mu.Unlock()
		untrack()
		return
	}
	e.untrack = untrack
	e.mu.Unlock()

	state, ok := e.cfg.Source.Current(entityID)
	e.onStockChange(state, ok)
}

func (e *Estimator) onStockChange(state string, ok bool) {
	var (
		q     decimal.Decimal
		known bool
	)
	if ok {
		parsed, err := ParseState(state)
		if err != nil {
			e.cfg.Logger.Debug("stock value unusable", "unique_id", e.cfg.StockUniqueID, "error", err)
		} else {
			q, known = parsed, true
		}
	}

	e.mu.Lock()
	if e.state != Linked {
		e.mu.Unlock()
		return
	}
	e.estimate = e.compute(q, known)
	est := e.estimate
	e.mu.Unlock()

	e.cfg.Publish(est)
}

// compute is a pure function of the observed quantity and the daily rate.
func (e *Estimator) compute(q decimal.Decimal, known bool) Estimate {
	est := Estimate{Quantity: q, QuantityKnown: known}
	attrs := map[string]any{
		AttrStockLevel:            nil,
		AttrDailyConsumption:      float(e.rate),
		AttrLowStockThresholdDays: e.cfg.Settings.LowStockDays,
		AttrIsLowStock:            false,
	}

	if known {
		attrs[AttrStockLevel] = float(q)
		est.Known = true
		if e.rate.IsPositive() {
			est.Days = q.Div(e.rate).Round(daysPrecision)
		} else {
			est.Days = NoConsumptionDays
		}
		est.LowStock = est.Days.LessThanOrEqual(decimal.NewFromInt(int64(e.cfg.Settings.LowStockDays)))
		attrs[AttrIsLowStock] = est.LowStock
	}

	est.Attributes = attrs
	return est
}

// Close releases the retry timer or the subscription. Safe to call twice.
func (e *Estimator) Close() {
	e.mu.Lock()
	cancel, untrack := e.cancelRetry, e.untrack
	e.cancelRetry, e.untrack = nil, nil
	e.state = Closed
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if untrack != nil {
		untrack()
	}
}
