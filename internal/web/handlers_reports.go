package web

// handlers_reports.go serves the report view endpoints. The acting
// session is named by the X-Session-ID header rather than the path, so
// report URLs stay shareable between sessions.

import (
	"net/http"
	"strconv"

	"github.com/fincollect/console/internal/core"
	"github.com/fincollect/console/internal/logging"
	"github.com/fincollect/console/internal/reporting"
	"github.com/go-chi/chi/v5"
)

// reportResponse is the report view payload.
type reportResponse struct {
	Report *reporting.Report `json:"report"`
	Error  string            `json:"error,omitempty"`
	Busy   bool              `json:"busy"`
}

// handleOpenReport loads a report and makes it the session's active view.
func (s *Server) handleOpenReport(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.reportRequest(w, r)
	if !ok {
		return
	}

	report, err := sess.View.Open(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report})
}

// handleValidateReport triggers a server-side validation run for the
// active report and returns the updated report. Failed runs leave the
// report untouched; the previous result stays on display.
func (s *Server) handleValidateReport(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.reportRequest(w, r)
	if !ok {
		return
	}

	report, err := sess.View.Validate(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}

	if report != nil {
		logging.FromContext(r.Context()).Info("report validated",
			"session_id", sess.ID,
			"report_id", id,
			"status", report.Status,
		)
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report})
}

// handleCloseReport clears the session's active report. A validation
// result still in flight for it becomes stale and is dropped.
func (s *Server) handleCloseReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.headerSession(w, r)
	if !ok {
		return
	}
	sess.View.Leave()
	w.WriteHeader(http.StatusNoContent)
}

// reportRequest resolves the session header and the reportID parameter.
func (s *Server) reportRequest(w http.ResponseWriter, r *http.Request) (*core.Session, int64, bool) {
	sess, ok := s.headerSession(w, r)
	if !ok {
		return nil, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
	if err != nil || id <= 0 {
		s.badRequest(w, "reportID must be a positive integer")
		return nil, 0, false
	}
	return sess, id, true
}

// headerSession resolves the X-Session-ID header.
func (s *Server) headerSession(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		s.badRequest(w, "X-Session-ID header is required")
		return nil, false
	}

	sess, err := s.service.Session(id)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
