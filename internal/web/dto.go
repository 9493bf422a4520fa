package web

// dto.go defines the request and response shapes for the JSON API and
// the shared decode/encode helpers. Structural validation (missing or
// malformed fields) happens here with validator tags; workflow rules
// (selection order, field values) stay in core so the wizard owns its
// own messaging.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fincollect/console/internal/core"
)

type createSessionRequest struct {
	// InstitutionID, when set, locks the session to one institution.
	InstitutionID string `json:"institution_id" validate:"omitempty,min=1"`
}

type selectSeriesRequest struct {
	SeriesID string `json:"series_id" validate:"required"`
}

type selectInstitutionRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
}

type setPeriodRequest struct {
	ReportingPeriod string `json:"reporting_period"`
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=form csv"`
}

type setFieldRequest struct {
	Index *int   `json:"index" validate:"required,min=0"`
	Value string `json:"value"`
}

// sessionStateResponse is the envelope every wizard endpoint returns.
type sessionStateResponse struct {
	SessionID string           `json:"session_id"`
	Wizard    core.WizardState `json:"wizard"`

	// NavTarget is the report to navigate to once the post-submission
	// grace period has elapsed. Zero means no pending navigation.
	NavTarget int64 `json:"nav_target,omitempty"`
}

// decodeJSON decodes the request body into dst and validates its shape.
// A false return means the response has already been written.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			s.badRequest(w, "request body is required")
			return false
		}
		s.badRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.badRequest(w, "invalid request: "+err.Error())
		return false
	}
	return true
}

// badRequest writes a 400 with a structural validation message. These
// bypass core.MapError: the client sent a malformed request, not a
// workflow error.
func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg,
		Message: msg,
		Code:    "REQ001",
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// sessionState builds the standard envelope for a session.
func sessionState(sess *core.Session) sessionStateResponse {
	return sessionStateResponse{
		SessionID: sess.ID,
		Wizard:    sess.Wizard.State(),
		NavTarget: sess.NavTarget(),
	}
}
