// Package reporting provides the HTTP client for the external reporting
// service: series and institution reference data, report creation, and
// server-side validation. The service is the source of truth for all
// persisted state; this package only speaks its wire contract.
package reporting

import (
	"encoding/json"
	"fmt"
	"time"
)

// Series is a named collection of MDRM elements collected on a defined
// frequency. Immutable from the console's viewpoint.
type Series struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Frequency   string          `json:"frequency"`
	Elements    []SeriesElement `json:"mdrm_elements"`
}

// SeriesElement is one MDRM entry in a series definition.
//
// The service returns element entries in one of two shapes: a bare MDRM
// identifier string, or a resolved element object with name, description,
// and data type. UnmarshalJSON accepts both; the bare form leaves every
// field except MDRMID empty.
type SeriesElement struct {
	MDRMID      string `json:"mdrm_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DataType    string `json:"data_type"`
}

// UnmarshalJSON decodes either a bare identifier string or a full element
// object into a SeriesElement.
func (e *SeriesElement) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = SeriesElement{MDRMID: id}
		return nil
	}

	// Alias avoids recursing into this method.
	type plain SeriesElement
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = SeriesElement(obj)
	return nil
}

// Institution is the reporting entity on whose behalf a report is
// submitted. Read-only reference data.
type Institution struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// ReportStatus is the lifecycle status of a submitted report.
// Transitions are submitted -> validated or submitted -> failed; the
// console never moves a report back to submitted.
type ReportStatus string

const (
	StatusSubmitted ReportStatus = "submitted"
	StatusValidated ReportStatus = "validated"
	StatusFailed    ReportStatus = "failed"
)

// Report is a submitted report instance. The identifier is assigned by
// the reporting service on creation and is never client-generated.
type Report struct {
	ID              int64             `json:"id"`
	SeriesID        string            `json:"series_id"`
	SeriesName      string            `json:"series_name,omitempty"`
	InstitutionID   string            `json:"institution_id"`
	InstitutionName string            `json:"institution_name,omitempty"`
	ReportingPeriod string            `json:"reporting_period"`
	SubmittedAt     time.Time         `json:"submission_date"`
	Status          ReportStatus      `json:"status"`
	Data            map[string]string `json:"data"`

	// ValidationResults is replaced wholesale on every validation call,
	// never merged with a prior result.
	ValidationResults *ValidationResult `json:"validation_results,omitempty"`
}

// ValidationResult is the outcome of a server-side validation run.
type ValidationResult struct {
	Passed bool              `json:"passed"`
	Errors []ValidationError `json:"errors"`
}

// ValidationError is a single server-side rule violation.
type ValidationError struct {
	MDRMID  string `json:"mdrm_id"`
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// Selections identifies what a report is for: which series, which
// institution, and which reporting period.
type Selections struct {
	SeriesID        string `json:"series_id"`
	InstitutionID   string `json:"institution_id"`
	ReportingPeriod string `json:"reporting_period"`
}

// Submission is a structured (form mode) report creation payload.
type Submission struct {
	Selections
	Data map[string]string `json:"data"`
}

// APIError is a non-2xx response from the reporting service. Detail
// carries the service's human-readable explanation when it provided one;
// it is propagated verbatim to the operator.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("reporting service: %s (status %d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("reporting service: unexpected status %d", e.StatusCode)
}
