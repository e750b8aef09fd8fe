package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/metrics"
	"github.com/nerrad567/medication-tracker/internal/medication"
)

// Service names.
const (
	ServiceTakeDose = "take_dose"
	ServiceAddStock = "add_stock"
	ServiceSetValue = "set_value"
)

// Service data keys.
const (
	FieldEntityID = "entity_id"
	FieldAmount   = "amount"
	FieldValue    = "value"
)

// ErrUnknownService is returned by Call for services that do not exist.
var ErrUnknownService = errors.New("tracker: unknown service")

// Services executes the integration's actions against the Index.
type Services struct {
	loop    *entity.Loop
	index   *Index
	metrics *metrics.Metrics
	logger  Logger
}

// NewServices creates the service layer. m may be nil.
func NewServices(loop *entity.Loop, index *Index, m *metrics.Metrics, logger Logger) *Services {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Services{loop: loop, index: index, metrics: m, logger: logger}
}

// Call dispatches a service call by domain and name.
func (s *Services) Call(ctx context.Context, domain, service string, data map[string]any) error {
	var err error
	switch {
	case domain == Domain && service == ServiceTakeDose:
		err = s.TakeDose(ctx, data[FieldEntityID])
	case domain == Domain && service == ServiceAddStock:
		err = s.AddStock(ctx, data[FieldEntityID], data[FieldAmount])
	case domain == medication.StockDomain && service == ServiceSetValue:
		err = s.SetValue(ctx, data[FieldEntityID], data[FieldValue])
	default:
		err = fmt.Errorf("%w: %s.%s", ErrUnknownService, domain, service)
	}
	s.metrics.ServiceCall(domain, service, err)
	return err
}

// TakeDose records one dose on the targeted medication.
func (s *Services) TakeDose(ctx context.Context, target any) error {
	m, err := s.resolve(ServiceTakeDose, target)
	if err != nil {
		return err
	}

	err = s.loop.Call(ctx, m.Ledger.TakeDose)
	switch {
	case err == nil:
		s.metrics.DoseAttempt(m.StockEntityID, metrics.DoseAccepted)
		s.logger.Info("dose taken",
			"entity_id", m.StockEntityID,
			"quantity", medication.FormatQuantity(m.Ledger.Quantity()),
		)
	case errors.Is(err, medication.ErrDuplicateDose):
		s.metrics.DoseAttempt(m.StockEntityID, metrics.DoseDuplicate)
		s.logger.Warn("duplicate dose rejected", "entity_id", m.StockEntityID, "operation", ServiceTakeDose, "error", err)
	default:
		s.logger.Error("take dose failed", "entity_id", m.StockEntityID, "error", err)
	}
	return err
}

// AddStock adds amount pills to the targeted medication. A nil amount
// adds the medication's refill amount.
func (s *Services) AddStock(ctx context.Context, target, amount any) error {
	m, err := s.resolve(ServiceAddStock, target)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = m.Ledger.Settings().RefillAmount
	}

	err = s.loop.Call(ctx, func() error { return m.Ledger.AddStock(amount) })
	if err != nil {
		s.logger.Warn("add stock rejected",
			"entity_id", m.StockEntityID,
			"operation", ServiceAddStock,
			"value", amount,
			"error", err,
		)
		return err
	}
	s.logger.Info("stock added",
		"entity_id", m.StockEntityID,
		"amount", amount,
		"quantity", medication.FormatQuantity(m.Ledger.Quantity()),
	)
	return nil
}

// SetValue overwrites the targeted medication's stock.
func (s *Services) SetValue(ctx context.Context, target, value any) error {
	m, err := s.resolve(ServiceSetValue, target)
	if err != nil {
		return err
	}

	err = s.loop.Call(ctx, func() error { return m.Ledger.SetQuantity(value) })
	if err != nil {
		s.logger.Warn("set value rejected",
			"entity_id", m.StockEntityID,
			"operation", ServiceSetValue,
			"value", value,
			"error", err,
		)
		return err
	}
	s.logger.Info("stock set", "entity_id", m.StockEntityID, "value", value)
	return nil
}

func (s *Services) resolve(service string, target any) (*Medication, error) {
	entityID, err := TargetEntityID(target)
	if err != nil {
		s.logger.Warn("service call without target", "operation", service, "value", target)
		return nil, err
	}
	m, ok := s.index.ByStockEntity(entityID)
	if !ok {
		s.logger.Warn("service call target is not a medication",
			"operation", service,
			"entity_id", entityID,
		)
		return nil, fmt.Errorf("%w: %s is not a medication stock entity", medication.ErrMissingTarget, entityID)
	}
	return m, nil
}

// TargetEntityID extracts the entity id from a service call's entity_id
// field, which may be a string or a list whose first element is used.
func TargetEntityID(target any) (string, error) {
	var id string
	switch t := target.(type) {
	case string:
		id = t
	case []string:
		if len(t) > 0 {
			id = t[0]
		}
	case []any:
		if len(t) > 0 {
			id, _ = t[0].(string)
		}
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: entity_id is required", medication.ErrMissingTarget)
	}
	return id, nil
}
