package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/mqtt"
)

const commandTimeout = 10 * time.Second

// CommandBus is the part of the MQTT client the command listener uses.
type CommandBus interface {
	Topics() mqtt.Topics
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Auditor records remote service calls.
type Auditor interface {
	Record(ctx context.Context, log audit.Log)
}

// CommandResult is published after every service call received over MQTT.
type CommandResult struct {
	Success  bool   `json:"success"`
	EntityID any    `json:"entity_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CommandListener executes service calls published to
// <prefix>/service/<domain>/<service> and replies on the matching
// service_result topic.
type CommandListener struct {
	bus      CommandBus
	services *Services
	qos      byte
	logger   Logger
	auditor  Auditor
}

// NewCommandListener creates a listener. Call Start to subscribe.
func NewCommandListener(bus CommandBus, services *Services, qos byte, logger Logger) *CommandListener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandListener{bus: bus, services: services, qos: qos, logger: logger}
}

// SetAuditor records every executed call with a.
func (l *CommandListener) SetAuditor(a Auditor) {
	l.auditor = a
}

// Start subscribes to all service call topics.
func (l *CommandListener) Start() error {
	if err := l.bus.Subscribe(l.bus.Topics().AllServiceCalls(), l.qos, l.handle); err != nil {
		return fmt.Errorf("subscribing to service calls: %w", err)
	}
	return nil
}

// Stop unsubscribes.
func (l *CommandListener) Stop() error {
	return l.bus.Unsubscribe(l.bus.Topics().AllServiceCalls())
}

func (l *CommandListener) handle(topic string, payload []byte) error {
	topics := l.bus.Topics()
	domain, service, ok := topics.ParseServiceCall(topic)
	if !ok {
		return fmt.Errorf("unexpected service topic %q", topic)
	}

	data := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return l.reply(domain, service, CommandResult{Error: "invalid JSON payload: " + err.Error()})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result := CommandResult{Success: true, EntityID: data[FieldEntityID]}
	err := l.services.Call(ctx, domain, service, data)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	l.audit(ctx, domain, service, data, err)
	return l.reply(domain, service, result)
}

func (l *CommandListener) audit(ctx context.Context, domain, service string, data map[string]any, err error) {
	if l.auditor == nil {
		return
	}
	target, _ := TargetEntityID(data[FieldEntityID])
	details := map[string]any{"domain": domain, "service": service}
	if err != nil {
		details["error"] = err.Error()
	}
	l.auditor.Record(ctx, audit.Log{
		Action:  audit.ActionServiceCall,
		Target:  target,
		Source:  audit.SourceMQTT,
		Result:  audit.ResultOf(err),
		Details: details,
	})
}

func (l *CommandListener) reply(domain, service string, result CommandResult) error {
	if err := l.bus.PublishJSON(l.bus.Topics().ServiceResult(domain, service), result, false); err != nil {
		l.logger.Warn("publishing service result failed", "domain", domain, "service", service, "error", err)
		return err
	}
	return nil
}
