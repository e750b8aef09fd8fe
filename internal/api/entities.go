package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/tracker"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// maxQueryParamLen limits query parameter length.
	maxQueryParamLen = 100
)

// EntityResponse is an entity's registry entry joined with its state.
type EntityResponse struct {
	entity.Entry
	State *entity.State `json:"state,omitempty"`
}

// setValueRequest is the body of POST /entities/{id}/value.
type setValueRequest struct {
	Value any `json:"value"`
}

// handleListEntities returns registered entities with their current state.
// Optional ?domain= filters by entity domain.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if len(domain) > maxQueryParamLen {
		writeBadRequest(w, "domain parameter too long")
		return
	}

	entries := s.entities.List()
	out := make([]EntityResponse, 0, len(entries))
	for _, e := range entries {
		if domain != "" && e.Domain != domain {
			continue
		}
		st, _ := s.states.Get(e.EntityID)
		out = append(out, EntityResponse{Entry: e, State: st})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": out,
		"count":    len(out),
	})
}

// handleGetEntity returns one entity with its current state.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	e, err := s.entities.Get(entityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	st, _ := s.states.Get(entityID)
	writeJSON(w, http.StatusOK, EntityResponse{Entry: e, State: st})
}

// handleGetEntityHistory returns recent state changes of an entity,
// newest first. For stock entities this is the dose and refill log.
func (s *Server) handleGetEntityHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not available")
		return
	}

	entityID := chi.URLParam(r, "id")
	if _, err := s.entities.Get(entityID); err != nil {
		writeDomainError(w, err)
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), entityID, limit)
	if err != nil {
		s.logger.Error("failed to read state history", "entity_id", entityID, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"history":   entries,
		"count":     len(entries),
	})
}

// handleSetEntityValue overwrites a stock entity's quantity.
func (s *Server) handleSetEntityValue(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	var req setValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.services.SetValue(r.Context(), entityID, req.Value)
	s.recordAudit(r, audit.ActionServiceCall, entityID, err, map[string]any{
		"domain":  "number",
		"service": tracker.ServiceSetValue,
		"value":   req.Value,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	st, _ := s.states.Get(entityID)
	writeJSON(w, http.StatusOK, st)
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", maxHistoryLimit)
	}

	return limit, nil
}
