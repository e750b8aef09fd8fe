package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/flow"
)

// handleStartFlow begins the add-medication / add-group setup flow.
func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flows.Start(r.Context()))
}

// handleStartOptionsFlow begins the options flow of an entry. Group
// entries answer with an abort result.
func (s *Server) handleStartOptionsFlow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flows.StartOptions(r.Context(), chi.URLParam(r, "id")))
}

// handleFlowStep submits the body as input to the flow's current step.
// Validation problems come back as a form result with per-field errors,
// not as an HTTP error.
func (s *Server) handleFlowStep(w http.ResponseWriter, r *http.Request) {
	input := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.flows.Step(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if result.Type == flow.ResultCreateEntry {
		action := audit.ActionEntryCreate
		if result.StepID == flow.StepInit {
			action = audit.ActionEntryOptions
		}
		s.recordAudit(r, action, result.EntryID, nil, map[string]any{"title": result.Title})
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAbortFlow discards an in-progress flow.
func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Abort(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
