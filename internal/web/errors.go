package web

// errors.go provides unified error response handling for the web layer.
//
// Every handler error flows through respondError:
//  1. The error is mapped via core.MapError to a user-facing message
//  2. The technical error is logged with the request ID for correlation
//  3. The client receives a JSON body with message, action, and code
//
// Wizard-level outcomes (precondition failures, field validation, busy)
// are not errors in this sense: handlers return the refreshed wizard
// state so the client can render banners and inline field errors.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fincollect/console/internal/core"
	"github.com/fincollect/console/internal/logging"
	"github.com/fincollect/console/internal/reporting"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user
// message with the given status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError picks an HTTP status for a core or reporting error.
func statusForError(err error) int {
	var apiErr *reporting.APIError
	switch {
	case errors.Is(err, core.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrStaleView):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyDispatches):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrAlreadySubmitted):
		return http.StatusConflict
	case isSessionNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		// The reporting service answered with a failure; relay it as an
		// upstream error rather than pretending it was ours.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isSessionNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "session not found")
}
