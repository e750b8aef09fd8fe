package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/configentry"
)

// handleListEntries returns every config entry. Optional ?kind= filters
// by medication or group.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	kind := configentry.Kind(r.URL.Query().Get("kind"))

	all := s.entries.List()
	out := make([]configentry.Entry, 0, len(all))
	for _, e := range all {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

// handleGetEntry returns one config entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEntry removes a config entry with its entities and device.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")
	err := s.entries.Remove(r.Context(), entryID)
	s.recordAudit(r, audit.ActionEntryRemove, entryID, err, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReloadEntry unloads and sets up an entry again, e.g. to retry
// after a setup error.
func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")
	e, err := s.entries.Reload(r.Context(), entryID)
	s.recordAudit(r, audit.ActionEntryReload, entryID, err, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleListGroups returns every medication group with its members.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.index.Groups()
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// handleListDevices returns the device of every medication.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []any{}, "count": 0})
		return
	}
	devices := s.devices.ListDevices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeNotFound(w, "device not found")
		return
	}
	d, err := s.devices.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
