package configentry

import (
	"maps"
	"time"
)

// Kind distinguishes what an entry configures.
type Kind string

// Entry kinds.
const (
	KindMedication Kind = "medication"
	KindGroup      Kind = "group"
)

// State is where an entry is in its lifecycle.
type State string

// Entry states.
const (
	StateNotLoaded  State = "not_loaded"
	StateLoaded     State = "loaded"
	StateSetupError State = "setup_error"
)

// Entry is one configured medication or group.
type Entry struct {
	EntryID string         `json:"entry_id"`
	Domain  string         `json:"domain"`
	Kind    Kind           `json:"kind"`
	Title   string         `json:"title"`
	Data    map[string]any `json:"data"`
	Options map[string]any `json:"options"`
	State   State          `json:"state"`
	// Reason explains a setup_error state.
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy whose maps can be modified independently.
func (e Entry) Clone() Entry {
	e.Data = maps.Clone(e.Data)
	e.Options = maps.Clone(e.Options)
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Options == nil {
		e.Options = map[string]any{}
	}
	return e
}
