// Package mqtt connects the medication tracker to an MQTT broker.
//
// The tracker publishes every entity state as a retained message and
// accepts service calls (take_dose, add_stock, set_value) from remote
// clients:
//
//	medtracker/state/{domain}/{object_id}          retained entity state
//	medtracker/service/{domain}/{service}          incoming service calls
//	medtracker/service_result/{domain}/{service}   call outcomes
//	medtracker/event/{type}                        notifications
//	medtracker/system/status                       online/offline + LWT
//
// The client wraps paho.mqtt.golang with subscription tracking, automatic
// re-subscription after reconnect, and panic recovery around handlers.
package mqtt
