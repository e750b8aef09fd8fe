package influxdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/medication-tracker/internal/infrastructure/config"
)

// testConfig matches a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "medtracker-dev-token",
		Org:           "medtracker",
		Bucket:        "medtracker",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run against a local InfluxDB")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_Disconnected(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("zero Client should not be connected")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes on a disconnected client are dropped silently.
	client.WriteStock(StockSample{EntityID: "number.aspirin_current_stock", Quantity: 10})
	client.WriteDaysRemaining(DaysRemainingSample{EntityID: "sensor.aspirin_days_remaining", Days: 5})
	client.Flush()

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStockPoint(t *testing.T) {
	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	p := stockPoint(StockSample{EntityID: "number.aspirin_current_stock", Medication: "Aspirin", Quantity: 28, At: at})

	if p.Name() != MeasurementStock {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["entity_id"] != "number.aspirin_current_stock" || tags["medication"] != "Aspirin" {
		t.Errorf("tags = %v", tags)
	}

	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "quantity" || fields[0].Value != 28.0 {
		t.Errorf("fields = %+v", fields)
	}
}

func TestDaysRemainingPoint(t *testing.T) {
	p := daysRemainingPoint(DaysRemainingSample{EntityID: "sensor.x", Medication: "X", Days: 3.5, LowStock: true, At: time.Now()})

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["days"] != 3.5 || fields["is_low_stock"] != true {
		t.Errorf("fields = %v", fields)
	}
}

func TestWriteAndFlush_Integration(t *testing.T) {
	client := connectOrSkip(t)

	writeErrs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case writeErrs <- err:
		default:
		}
	})

	client.WriteStock(StockSample{EntityID: "number.test_current_stock", Medication: "Test", Quantity: 30, At: time.Now()})
	client.WriteDaysRemaining(DaysRemainingSample{EntityID: "sensor.test_days_remaining", Medication: "Test", Days: 15, At: time.Now()})
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	select {
	case err := <-writeErrs:
		t.Errorf("async write error = %v", err)
	default:
	}
}
