package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots every tracker topic unless configured otherwise.
const DefaultTopicPrefix = "medtracker"

// Topics builds tracker MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("medtracker")
//	topics.EntityState("number.aspirin_current_stock")
//	// Returns: "medtracker/state/number/aspirin_current_stock"
//
// Entity ids are split on their first dot so consumers can subscribe to a
// whole domain with a single-level wildcard.
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix, or DefaultTopicPrefix when
// prefix is empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// EntityState is the retained state topic of an entity.
//
// Example: medtracker/state/sensor/aspirin_days_remaining
func (t Topics) EntityState(entityID string) string {
	domain, object, ok := strings.Cut(entityID, ".")
	if !ok {
		return fmt.Sprintf("%s/state/%s", t.root(), entityID)
	}
	return fmt.Sprintf("%s/state/%s/%s", t.root(), domain, object)
}

// ServiceCall is the topic remote clients publish service calls to.
//
// Example: medtracker/service/medication_tracker/take_dose
func (t Topics) ServiceCall(domain, service string) string {
	return fmt.Sprintf("%s/service/%s/%s", t.root(), domain, service)
}

// ServiceResult carries the outcome of a service call received over MQTT.
//
// Example: medtracker/service_result/medication_tracker/take_dose
func (t Topics) ServiceResult(domain, service string) string {
	return fmt.Sprintf("%s/service_result/%s/%s", t.root(), domain, service)
}

// Event is the topic for non-state notifications such as low stock.
//
// Example: medtracker/event/low_stock
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.root(), eventType)
}

// SystemStatus carries the retained online/offline status (and LWT).
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// AllServiceCalls matches every service call topic.
func (t Topics) AllServiceCalls() string {
	return t.root() + "/service/+/+"
}

// AllEntityStates matches every entity state topic.
func (t Topics) AllEntityStates() string {
	return t.root() + "/state/#"
}

// ParseServiceCall extracts domain and service from a ServiceCall topic.
func (t Topics) ParseServiceCall(topic string) (domain, service string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/service/")
	if !found {
		return "", "", false
	}
	domain, service, ok = strings.Cut(rest, "/")
	if !ok || domain == "" || service == "" || strings.Contains(service, "/") {
		return "", "", false
	}
	return domain, service, true
}
