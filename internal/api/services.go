package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/tracker"
)

// ServiceResponse reports a successful service call.
type ServiceResponse struct {
	Domain   string `json:"domain"`
	Service  string `json:"service"`
	EntityID any    `json:"entity_id,omitempty"`
	State    any    `json:"state,omitempty"`
}

// handleCallService runs a service such as medication_tracker.take_dose.
// The body is the service data, e.g. {"entity_id": "number.x_current_stock"}.
// An empty body is treated as no data.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	service := chi.URLParam(r, "service")

	data := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	target, _ := tracker.TargetEntityID(data[tracker.FieldEntityID])
	err := s.services.Call(r.Context(), domain, service, data)
	s.recordAudit(r, audit.ActionServiceCall, target, err, map[string]any{"domain": domain, "service": service})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ServiceResponse{Domain: domain, Service: service, EntityID: data[tracker.FieldEntityID]}
	if st, ok := s.states.Get(target); ok {
		resp.State = st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListServices describes the services this server accepts.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": []map[string]any{
			{"domain": tracker.Domain, "service": tracker.ServiceTakeDose, "fields": []string{tracker.FieldEntityID}},
			{"domain": tracker.Domain, "service": tracker.ServiceAddStock, "fields": []string{tracker.FieldEntityID, tracker.FieldAmount}},
			{"domain": "number", "service": tracker.ServiceSetValue, "fields": []string{tracker.FieldEntityID, tracker.FieldValue}},
		},
	})
}
