package core

// error_messages.go maps technical errors to user-facing messages with
// support codes. Operators quote the code to support staff; support staff
// grep the logs for the original error.
//
// Codes are grouped by category:
//
//	SCH001-SCH099  schema and reference data loading
//	TRN001-TRN099  transport failures reaching the reporting service
//	DSP001-DSP099  report dispatch
//	VCL001-VCL099  post-submission validation
//	SES001-SES099  wizard session lifecycle
//	ERR000         fallback when nothing matches
//
// Patterns are matched case-insensitively with strings.Contains; the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is user-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Schema and Reference Data (SCH001-SCH003)
	// =========================================================================
	{
		pattern: "schema load for series",
		msg: UserMessage{
			Message: "Failed to load series details",
			Action:  "Please try selecting the series again",
			Code:    "SCH001",
		},
	},
	{
		pattern: "fetch series",
		msg: UserMessage{
			Message: "Failed to load series details",
			Action:  "Please try selecting the series again",
			Code:    "SCH001",
		},
	},
	{
		pattern: "fetch institutions",
		msg: UserMessage{
			Message: "Failed to load the institution list",
			Action:  "Please refresh and try again",
			Code:    "SCH002",
		},
	},
	{
		pattern: "decode response",
		msg: UserMessage{
			Message: "The reporting service returned an unreadable response",
			Action:  "Please try again or contact support",
			Code:    "SCH003",
		},
	},

	// =========================================================================
	// Transport (TRN001-TRN003)
	// Connection-level failures before the service produced an answer.
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the reporting service",
			Action:  "Please try again in a few moments",
			Code:    "TRN001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The reporting service took too long to respond",
			Action:  "Please try again",
			Code:    "TRN002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The reporting service took too long to respond",
			Action:  "Please try again",
			Code:    "TRN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "TRN003",
		},
	},

	// =========================================================================
	// Dispatch (DSP001-DSP004)
	// =========================================================================
	{
		pattern: "busy with an in-flight",
		msg: UserMessage{
			Message: "A submission is already in progress",
			Action:  "Please wait for it to finish",
			Code:    "DSP001",
		},
	},
	{
		pattern: "no csv file",
		msg: UserMessage{
			Message: "No CSV file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "DSP002",
		},
	},
	{
		pattern: "already submitted",
		msg: UserMessage{
			Message: "This report was already submitted",
			Action:  "Start a new submission for another report",
			Code:    "DSP003",
		},
	},
	{
		pattern: "too many concurrent submissions",
		msg: UserMessage{
			Message: "The system is busy processing other submissions",
			Action:  "Please wait a moment and try again",
			Code:    "DSP004",
		},
	},

	// =========================================================================
	// Validation Workflow (VCL001-VCL002)
	// =========================================================================
	{
		pattern: "validation call for report",
		msg: UserMessage{
			Message: "Validation failed to run",
			Action:  "The report is unchanged. Please try again",
			Code:    "VCL001",
		},
	},
	{
		pattern: "no longer the active view",
		msg: UserMessage{
			Message: "The report is no longer open",
			Action:  "Open the report again to continue",
			Code:    "VCL002",
		},
	},

	// =========================================================================
	// Session Lifecycle (SES001)
	// =========================================================================
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Your wizard session has expired",
			Action:  "Please start a new submission",
			Code:    "SES001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support
// staff should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. It
// searches through known error patterns (case-insensitive) and returns
// the first match, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// UserError pairs a technical error (for logging) with its mapped
// user-facing message (for display).
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err into a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
