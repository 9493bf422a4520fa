package web

// handlers_wizard.go serves the submission wizard endpoints. Workflow
// outcomes the operator corrects in place (precondition banners, inline
// field errors, a missing CSV file, a rejected dispatch) come back as a
// 200 with the refreshed state; the banner and field annotations are in
// the state itself. Structural problems (unknown session, bad JSON,
// busy wizard) are error responses.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fincollect/console/internal/core"
	"github.com/fincollect/console/internal/logging"
	"github.com/fincollect/console/internal/reporting"
	"github.com/go-chi/chi/v5"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInstitutions returns the institution reference list.
func (s *Server) handleInstitutions(w http.ResponseWriter, r *http.Request) {
	insts, err := s.service.Institutions(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

// handleCreateSession starts a new wizard session. The body is optional;
// an empty body creates an unscoped session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	sess := s.service.CreateSession(req.InstitutionID)
	logging.FromContext(r.Context()).Info("wizard session created",
		"session_id", sess.ID,
		"institution_locked", req.InstitutionID != "",
	)
	writeJSON(w, http.StatusCreated, sessionState(sess))
}

// handleSessionState returns the current wizard snapshot.
func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleEndSession discards the session.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.service.EndSession(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectSeries records the series choice and loads its schema.
func (s *Server) handleSelectSeries(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectSeriesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	err := sess.Wizard.SelectSeries(r.Context(), req.SeriesID)
	s.respondWizard(w, r, sess, err)
}

// handleSelectInstitution records the institution choice.
func (s *Server) handleSelectInstitution(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectInstitutionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := sess.Wizard.SelectInstitution(req.InstitutionID); err != nil {
		if errors.Is(err, core.ErrInstitutionFixed) {
			s.respondError(w, r, err, http.StatusForbidden)
			return
		}
		s.respondWizard(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleSetPeriod records the reporting period label.
func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req setPeriodRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	err := sess.Wizard.SetPeriod(req.ReportingPeriod)
	s.respondWizard(w, r, sess, err)
}

// handleSetMode switches between form and CSV entry.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req setModeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	err := sess.Wizard.SetMode(core.EntryMode(req.Mode))
	s.respondWizard(w, r, sess, err)
}

// handleSetField updates one form field's value.
func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req setFieldRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := sess.Wizard.SetFieldValue(*req.Index, req.Value); err != nil {
		if errors.Is(err, core.ErrBusy) {
			s.respondError(w, r, err, http.StatusConflict)
			return
		}
		s.badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleAttachFile accepts the CSV file as a multipart upload. The file
// is held opaquely; nothing inspects its content.
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxCSVSize)
	if err := r.ParseMultipartForm(s.maxCSVSize); err != nil {
		s.badRequest(w, "file exceeds the maximum upload size or is not valid multipart data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	werr := sess.Wizard.AttachFile(header.Filename, data)
	logging.FromContext(r.Context()).Info("csv file attached",
		"session_id", sess.ID,
		"file_name", header.Filename,
		"size_bytes", len(data),
	)
	s.respondWizard(w, r, sess, werr)
}

// handleNext advances the wizard, dispatching the submission when leaving
// the data-entry step.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	err := sess.Wizard.Next(r.Context())
	if err == nil {
		state := sess.Wizard.State()
		if state.Step == "submitted" {
			logging.FromContext(r.Context()).Info("report submitted",
				"session_id", sess.ID,
				"report_id", state.ReportID,
			)
		}
	}
	s.respondWizard(w, r, sess, err)
}

// handleBack returns from data entry to the selection step.
func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	err := sess.Wizard.Back()
	s.respondWizard(w, r, sess, err)
}

// session resolves the sessionID route parameter. A false return means
// the response has already been written.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// respondWizard renders the outcome of a wizard action. Outcomes the
// operator fixes through the UI come back as state; the rest are error
// responses.
func (s *Server) respondWizard(w http.ResponseWriter, r *http.Request, sess *core.Session, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sessionState(sess))

	case isWorkflowOutcome(err):
		// The refreshed state carries the banner or field annotations.
		writeJSON(w, http.StatusOK, sessionState(sess))

	case errors.Is(err, core.ErrBusy), errors.Is(err, core.ErrAlreadySubmitted):
		s.respondError(w, r, err, http.StatusConflict)

	default:
		s.respondError(w, r, err, statusForError(err))
	}
}

// isWorkflowOutcome reports whether err is an operator-correctable
// wizard outcome rather than a request failure. Upstream failures
// (schema load, dispatch) count too: the wizard already turned them into
// a banner.
func isWorkflowOutcome(err error) bool {
	var pre *core.PreconditionError
	if errors.As(err, &pre) {
		return true
	}
	if errors.Is(err, core.ErrFieldsInvalid) || errors.Is(err, core.ErrNoFile) {
		return true
	}
	if errors.Is(err, core.ErrTooManyDispatches) {
		return true
	}

	var apiErr *reporting.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	return strings.Contains(err.Error(), "schema load for series")
}

// decodeOptionalJSON decodes a body that may legitimately be absent.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
