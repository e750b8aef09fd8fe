package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/medication-tracker/internal/audit"
)

// recordAudit writes an audit entry for the authenticated caller.
func (s *Server) recordAudit(r *http.Request, action, target string, err error, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Log{
		Action:  action,
		Target:  target,
		Source:  audit.SourceAPI,
		Result:  audit.ResultOf(err),
		Details: details,
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		entry.Subject = claims.Subject
	}
	if err != nil {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["error"] = err.Error()
	}
	s.audit.Record(r.Context(), entry)
}

// handleListAudit returns the audit trail, newest first. Optional filters:
// action, target, subject, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Target:  q.Get("target"),
		Subject: q.Get("subject"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid "+name)
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
