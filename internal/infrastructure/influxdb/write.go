package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the tracker.
const (
	MeasurementStock         = "medication_stock"
	MeasurementDaysRemaining = "medication_days_remaining"
)

// StockSample is one observation of a medication's pill count.
type StockSample struct {
	EntityID   string
	Medication string
	Quantity   float64
	At         time.Time
}

// DaysRemainingSample is one output of the depletion estimator.
type DaysRemainingSample struct {
	EntityID   string
	Medication string
	Days       float64
	LowStock   bool
	At         time.Time
}

// WriteStock records a stock level. Non-blocking; dropped when disconnected.
func (c *Client) WriteStock(s StockSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stockPoint(s))
}

// WriteDaysRemaining records a days-of-supply estimate.
func (c *Client) WriteDaysRemaining(s DaysRemainingSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(daysRemainingPoint(s))
}

func stockPoint(s StockSample) *write.Point {
	return write.NewPoint(
		MeasurementStock,
		map[string]string{
			"entity_id":  s.EntityID,
			"medication": s.Medication,
		},
		map[string]any{
			"quantity": s.Quantity,
		},
		s.At,
	)
}

func daysRemainingPoint(s DaysRemainingSample) *write.Point {
	return write.NewPoint(
		MeasurementDaysRemaining,
		map[string]string{
			"entity_id":  s.EntityID,
			"medication": s.Medication,
		},
		map[string]any{
			"days":         s.Days,
			"is_low_stock": s.LowStock,
		},
		s.At,
	)
}
