// Package audit records who called a service or changed a config entry,
// and from where.
package audit

import "time"

// Actions.
const (
	ActionServiceCall  = "service_call"
	ActionEntryCreate  = "entry_create"
	ActionEntryRemove  = "entry_remove"
	ActionEntryOptions = "entry_options"
	ActionEntryReload  = "entry_reload"
)

// Sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Log is one audit trail entry.
type Log struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	// Target is the entity id of a service call or the entry id of a
	// config change.
	Target string `json:"target,omitempty"`
	// Subject is the API token subject. Empty for MQTT calls.
	Subject   string         `json:"subject,omitempty"`
	Source    string         `json:"source"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which logs List returns.
type Filter struct {
	Action  string
	Target  string
	Subject string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult is one page of logs, newest first.
type ListResult struct {
	Logs   []Log `json:"logs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ResultOf maps an operation error to a Result value.
func ResultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
