package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/device"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/medication"
)

// Domain is the integration's config entry domain and entity platform.
const Domain = medication.Platform

// Extra attributes published alongside the medication attributes.
const (
	AttrFriendlyName = "friendly_name"
	AttrUnit         = "unit_of_measurement"
	AttrDeviceID     = "device_id"
)

// Logger defines the logging interface used by this package.
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

// Deps are the host services the integration runs on.
type Deps struct {
	Loop     *entity.Loop
	States   *entity.StateMachine
	Entities *entity.Registry
	Devices  *device.Registry
	Restore  *entity.RestoreStore
	Index    *Index

	Guard         medication.DoseGuard
	RetryInterval time.Duration
	Logger        Logger
}

// Integration sets up and tears down medication and group entries.
// It implements configentry.Handler.
type Integration struct {
	deps   Deps
	logger Logger
}

var _ configentry.Handler = (*Integration)(nil)

// NewIntegration creates the integration.
func NewIntegration(deps Deps) *Integration {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if deps.RetryInterval <= 0 {
		deps.RetryInterval = medication.DefaultLinkRetry
	}
	return &Integration{deps: deps, logger: logger}
}

// SetupEntry implements configentry.Handler.
func (i *Integration) SetupEntry(ctx context.Context, e configentry.Entry) error {
	switch e.Kind {
	case configentry.KindMedication:
		return i.setupMedication(ctx, e)
	case configentry.KindGroup:
		return i.setupGroup(e)
	default:
		return fmt.Errorf("%w: unknown entry kind %q", medication.ErrSetupFailure, e.Kind)
	}
}

func (i *Integration) setupMedication(ctx context.Context, e configentry.Entry) error {
	settings, err := medication.ParseSettings(e.Data, e.Options)
	if err != nil {
		return err
	}

	dev, err := i.deps.Devices.Ensure(ctx, e.EntryID, settings.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", medication.ErrSetupFailure, err)
	}

	stockReg, err := i.deps.Entities.GetOrCreate(ctx, entity.Registration{
		Domain:            medication.StockDomain,
		Platform:          Domain,
		UniqueID:          e.EntryID + medication.StockSuffix,
		ConfigEntryID:     e.EntryID,
		DeviceID:          dev.ID,
		SuggestedObjectID: settings.Name + " current stock",
		OriginalName:      settings.Name + " Current Stock",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", medication.ErrSetupFailure, err)
	}

	sensorReg, err := i.deps.Entities.GetOrCreate(ctx, entity.Registration{
		Domain:            medication.SensorDomain,
		Platform:          Domain,
		UniqueID:          e.EntryID + medication.DaysSuffix,
		ConfigEntryID:     e.EntryID,
		DeviceID:          dev.ID,
		SuggestedObjectID: settings.Name + " days remaining",
		OriginalName:      settings.Name + " Days Remaining",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", medication.ErrSetupFailure, err)
	}

	return i.deps.Loop.Call(ctx, func() error {
		if prev, ok := i.deps.Index.Remove(e.EntryID); ok {
			prev.Estimator.Close()
		}

		m := &Medication{
			EntryID:        e.EntryID,
			StockEntityID:  stockReg.EntityID,
			SensorEntityID: sensorReg.EntityID,
			DeviceID:       dev.ID,
		}

		m.Ledger = medication.NewLedger(e.EntryID+medication.StockSuffix, settings, i.deps.Guard,
			medication.WithPublisher(i.stockPublisher(m, stockReg.OriginalName)),
		)
		m.Ledger.Restore(i.snapshot(stockReg.EntityID))

		m.Estimator = medication.NewEstimator(medication.EstimatorConfig{
			StockUniqueID: e.EntryID + medication.StockSuffix,
			Settings:      settings,
			Directory:     i.deps.Entities,
			Source:        stateSource{i.deps.States},
			Scheduler:     i.deps.Loop,
			RetryInterval: i.deps.RetryInterval,
			Publish:       i.sensorPublisher(m, sensorReg.OriginalName),
			Logger:        i.logger,
		})
		m.Estimator.Start()

		i.deps.Index.Add(m)
		i.logger.Info("medication set up",
			"entry_id", e.EntryID,
			"name", settings.Name,
			"stock_entity", m.StockEntityID,
			"sensor_entity", m.SensorEntityID,
			"quantity", medication.FormatQuantity(m.Ledger.Quantity()),
		)
		return nil
	})
}

func (i *Integration) snapshot(entityID string) *medication.Snapshot {
	st, ok := i.deps.Restore.LastState(entityID)
	if !ok {
		return nil
	}
	return &medication.Snapshot{State: st.State, Attributes: st.Attributes}
}

func (i *Integration) stockPublisher(m *Medication, name string) func(medication.Reading) {
	return func(r medication.Reading) {
		attrs := r.Attributes
		attrs[AttrFriendlyName] = name
		attrs[AttrUnit] = "pills"
		attrs[AttrDeviceID] = m.DeviceID
		i.deps.States.Set(m.StockEntityID, medication.FormatQuantity(r.Quantity), attrs)
	}
}

func (i *Integration) sensorPublisher(m *Medication, name string) func(medication.Estimate) {
	return func(est medication.Estimate) {
		state := medication.StateUnknown
		if est.Known {
			state = est.Days.String()
		}
		attrs := est.Attributes
		attrs[AttrFriendlyName] = name
		attrs[AttrUnit] = "days"
		attrs[AttrDeviceID] = m.DeviceID
		i.deps.States.Set(m.SensorEntityID, state, attrs)
	}
}

func (i *Integration) setupGroup(e configentry.Entry) error {
	g, err := medication.ParseGroup(e.Data)
	if err != nil {
		return err
	}
	i.deps.Index.AddGroup(GroupInfo{EntryID: e.EntryID, Name: g.Name, Members: g.Members})
	i.logger.Info("medication group set up", "entry_id", e.EntryID, "name", g.Name, "members", len(g.Members))
	return nil
}

// UnloadEntry implements configentry.Handler. The entities' last states
// stay in the restore store so a reload resumes from them.
func (i *Integration) UnloadEntry(ctx context.Context, e configentry.Entry) error {
	if e.Kind == configentry.KindGroup {
		i.deps.Index.RemoveGroup(e.EntryID)
		return nil
	}

	return i.deps.Loop.Call(ctx, func() error {
		m, ok := i.deps.Index.Remove(e.EntryID)
		if !ok {
			return nil
		}
		m.Estimator.Close()
		i.deps.States.Remove(m.SensorEntityID)
		i.deps.States.Remove(m.StockEntityID)
		i.logger.Info("medication unloaded", "entry_id", e.EntryID)
		return nil
	})
}

// RemoveEntry implements configentry.Handler. It deletes the entry's
// entity registrations, device and restore states.
func (i *Integration) RemoveEntry(ctx context.Context, e configentry.Entry) error {
	if e.Kind == configentry.KindGroup {
		return nil
	}

	removed, err := i.deps.Entities.RemoveConfigEntry(ctx, e.EntryID)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range removed {
		if err := i.deps.Restore.Forget(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := i.deps.Devices.RemoveByConfigEntry(ctx, e.EntryID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// stateSource adapts the state machine to medication.StockSource.
type stateSource struct {
	states *entity.StateMachine
}

func (s stateSource) Current(entityID string) (string, bool) {
	st, ok := s.states.Get(entityID)
	if !ok {
		return "", false
	}
	return st.State, true
}

func (s stateSource) Track(entityID string, fn func(string, bool)) func() {
	return s.states.Track(entityID, func(ev entity.Event) {
		if ev.New == nil {
			fn("", false)
			return
		}
		fn(ev.New.State, true)
	})
}
