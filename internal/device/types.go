package device

import "time"

// Fixed device metadata for medication devices.
const (
	Manufacturer = "Custom"
	Model        = "Medication Tracker"
)

// Device is the physical-world anchor of one medication.
type Device struct {
	ID            string `json:"id"`
	ConfigEntryID string `json:"config_entry_id"`
	Name          string `json:"name"`
	Manufacturer  string `json:"manufacturer"`
	Model         string `json:"model"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
