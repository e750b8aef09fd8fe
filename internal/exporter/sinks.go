package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/influxdb"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/metrics"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/mqtt"
	"github.com/nerrad567/medication-tracker/internal/medication"
)

// Event channels and types shared by the MQTT and WebSocket sinks.
const (
	ChannelStateChanged = "state_changed"
	ChannelLowStock     = "low_stock"
)

const friendlyNameAttr = "friendly_name"

// LowStockEvent is emitted when a days-remaining sensor becomes low.
type LowStockEvent struct {
	EntityID      string    `json:"entity_id"`
	Name          string    `json:"name"`
	DaysRemaining float64   `json:"days_remaining"`
	ThresholdDays any       `json:"threshold_days"`
	At            time.Time `json:"at"`
}

// RestoreSink persists each new state so it survives a restart.
type RestoreSink struct {
	store *entity.RestoreStore
}

// NewRestoreSink creates a sink writing to store.
func NewRestoreSink(store *entity.RestoreStore) *RestoreSink {
	return &RestoreSink{store: store}
}

// Name implements Sink.
func (*RestoreSink) Name() string { return "restore" }

// Export implements Sink. Removals are ignored: an unloaded entity keeps
// its last state until its config entry is deleted.
func (s *RestoreSink) Export(ctx context.Context, ev entity.Event) error {
	if ev.New == nil {
		return nil
	}
	return s.store.Save(ctx, *ev.New)
}

// HistorySink appends state changes to the history. Attribute-only
// updates are not recorded.
type HistorySink struct {
	repo entity.HistoryRepository
}

// NewHistorySink creates a sink writing to repo.
func NewHistorySink(repo entity.HistoryRepository) *HistorySink {
	return &HistorySink{repo: repo}
}

// Name implements Sink.
func (*HistorySink) Name() string { return "history" }

// Export implements Sink.
func (s *HistorySink) Export(ctx context.Context, ev entity.Event) error {
	if ev.New == nil {
		return nil
	}
	if ev.Old != nil && ev.Old.State == ev.New.State {
		return nil
	}
	return s.repo.Record(ctx, *ev.New)
}

// Publisher is the part of the MQTT client the MQTT sink uses.
type Publisher interface {
	Topics() mqtt.Topics
	PublishJSON(topic string, v any, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// MQTTSink publishes retained entity states and low stock events.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (*MQTTSink) Name() string { return "mqtt" }

// Export implements Sink. A removed entity has its retained state cleared.
func (s *MQTTSink) Export(_ context.Context, ev entity.Event) error {
	topics := s.pub.Topics()
	topic := topics.EntityState(ev.EntityID)

	if ev.New == nil {
		return s.pub.PublishRetained(topic, []byte{})
	}
	if err := s.pub.PublishJSON(topic, ev.New, true); err != nil {
		return err
	}
	if low, ok := lowStockCrossed(ev); ok {
		if err := s.pub.PublishJSON(topics.Event(ChannelLowStock), low, false); err != nil {
			return fmt.Errorf("publishing low stock event: %w", err)
		}
	}
	return nil
}

// TelemetryWriter is the part of the InfluxDB client the telemetry sink uses.
type TelemetryWriter interface {
	WriteStock(s influxdb.StockSample)
	WriteDaysRemaining(s influxdb.DaysRemainingSample)
}

// TelemetrySink writes stock levels and days-remaining estimates as
// time-series points.
type TelemetrySink struct {
	w TelemetryWriter
}

// NewTelemetrySink creates a sink writing to w.
func NewTelemetrySink(w TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{w: w}
}

// Name implements Sink.
func (*TelemetrySink) Name() string { return "influxdb" }

// Export implements Sink. Unknown values are skipped.
func (s *TelemetrySink) Export(_ context.Context, ev entity.Event) error {
	if ev.New == nil {
		return nil
	}
	value, ok := numericState(ev.New)
	if !ok {
		return nil
	}

	switch domainOf(ev.EntityID) {
	case medication.StockDomain:
		s.w.WriteStock(influxdb.StockSample{
			EntityID:   ev.EntityID,
			Medication: medicationName(ev.New),
			Quantity:   value,
			At:         ev.New.LastUpdated,
		})
	case medication.SensorDomain:
		low, _ := ev.New.Attributes[medication.AttrIsLowStock].(bool)
		s.w.WriteDaysRemaining(influxdb.DaysRemainingSample{
			EntityID:   ev.EntityID,
			Medication: medicationName(ev.New),
			Days:       value,
			LowStock:   low,
			At:         ev.New.LastUpdated,
		})
	}
	return nil
}

// MetricsSink mirrors current stock and days remaining into Prometheus gauges.
type MetricsSink struct {
	m *metrics.Metrics
}

// NewMetricsSink creates a sink updating m.
func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

// Name implements Sink.
func (*MetricsSink) Name() string { return "metrics" }

// Export implements Sink.
func (s *MetricsSink) Export(_ context.Context, ev entity.Event) error {
	if ev.New == nil {
		s.m.Forget(ev.EntityID)
		return nil
	}
	value, known := numericState(ev.New)

	switch domainOf(ev.EntityID) {
	case medication.StockDomain:
		if known {
			s.m.SetStock(ev.EntityID, value)
		}
	case medication.SensorDomain:
		low, _ := ev.New.Attributes[medication.AttrIsLowStock].(bool)
		s.m.SetDaysRemaining(ev.EntityID, value, known, low)
	}
	return nil
}

// Broadcaster delivers events to live WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcastSink forwards every event to WebSocket clients.
type BroadcastSink struct {
	b Broadcaster
}

// NewBroadcastSink creates a sink broadcasting through b.
func NewBroadcastSink(b Broadcaster) *BroadcastSink {
	return &BroadcastSink{b: b}
}

// Name implements Sink.
func (*BroadcastSink) Name() string { return "websocket" }

// Export implements Sink.
func (s *BroadcastSink) Export(_ context.Context, ev entity.Event) error {
	s.b.Broadcast(ChannelStateChanged, ev)
	if low, ok := lowStockCrossed(ev); ok {
		s.b.Broadcast(ChannelLowStock, low)
	}
	return nil
}

// lowStockCrossed reports whether ev moved a days-remaining sensor into
// the low stock band.
func lowStockCrossed(ev entity.Event) (LowStockEvent, bool) {
	if ev.New == nil || domainOf(ev.EntityID) != medication.SensorDomain {
		return LowStockEvent{}, false
	}
	if low, _ := ev.New.Attributes[medication.AttrIsLowStock].(bool); !low {
		return LowStockEvent{}, false
	}
	if ev.Old != nil {
		if wasLow, _ := ev.Old.Attributes[medication.AttrIsLowStock].(bool); wasLow {
			return LowStockEvent{}, false
		}
	}

	days, _ := numericState(ev.New)
	return LowStockEvent{
		EntityID:      ev.EntityID,
		Name:          medicationName(ev.New),
		DaysRemaining: days,
		ThresholdDays: ev.New.Attributes[medication.AttrLowStockThresholdDays],
		At:            ev.New.LastUpdated,
	}, true
}

func numericState(st *entity.State) (float64, bool) {
	d, err := medication.ParseState(st.State)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func medicationName(st *entity.State) string {
	if name, ok := st.Attributes[medication.AttrMedicationName].(string); ok && name != "" {
		return name
	}
	name, _ := st.Attributes[friendlyNameAttr].(string)
	return name
}

func domainOf(entityID string) string {
	domain, _, err := entity.SplitEntityID(entityID)
	if err != nil {
		return ""
	}
	return domain
}
