package core

import (
	"context"
	"errors"
	"sync"

	"github.com/fincollect/console/internal/reporting"
)

// ErrStaleView marks a result whose target report is no longer the one
// on display. Stale results are dropped, never applied.
var ErrStaleView = errors.New("report is no longer the active view")

// Validator is the slice of the reporting client the report view needs.
type Validator interface {
	ReportByID(ctx context.Context, id int64) (*reporting.Report, error)
	TriggerValidation(ctx context.Context, id int64) (*reporting.ValidationResult, error)
}

// ReportView holds the report currently open for inspection and drives
// the post-submission validation workflow. A view shows at most one
// report at a time; results arriving for any other report are dropped.
type ReportView struct {
	client Validator

	mu       sync.Mutex
	activeID int64
	report   *reporting.Report
	busy     bool
	errMsg   string
}

// NewReportView creates an empty view.
func NewReportView(client Validator) *ReportView {
	return &ReportView{client: client}
}

// Open loads the report and makes it the active one. A report opened
// while a validation call for a previous report is still in flight wins:
// the old call's result will be discarded on arrival.
func (v *ReportView) Open(ctx context.Context, id int64) (*reporting.Report, error) {
	v.mu.Lock()
	v.activeID = id
	v.report = nil
	v.errMsg = ""
	v.mu.Unlock()

	report, err := v.client.ReportByID(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.activeID != id {
		return nil, ErrStaleView
	}
	if err != nil {
		v.errMsg = failureBanner(err, "Failed to load report.")
		return nil, err
	}

	v.report = report
	return cloneReport(report), nil
}

// Leave clears the active report. Any in-flight validation result for it
// becomes stale and will be dropped.
func (v *ReportView) Leave() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.activeID = 0
	v.report = nil
	v.busy = false
	v.errMsg = ""
}

// Validate triggers a server-side validation run for the active report
// and applies the outcome. On success the displayed result is replaced
// wholesale and the status moves to validated or failed. On call failure
// the displayed report is left untouched so a previous good result stays
// visible. Re-running is always allowed; a second run's result simply
// replaces the first.
func (v *ReportView) Validate(ctx context.Context, id int64) (*reporting.Report, error) {
	v.mu.Lock()
	if v.activeID != id {
		v.mu.Unlock()
		return nil, ErrStaleView
	}
	if v.busy {
		v.mu.Unlock()
		return nil, ErrBusy
	}
	v.busy = true
	v.mu.Unlock()

	result, err := v.client.TriggerValidation(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = false

	// The operator navigated away while the call was outstanding. The
	// result targets a report no longer on display; drop it.
	if v.activeID != id {
		return nil, ErrStaleView
	}

	if err != nil {
		v.errMsg = failureBanner(err, "Validation failed to run. Please try again.")
		return nil, err
	}

	v.errMsg = ""
	if v.report != nil {
		v.report.ValidationResults = result
		if result.Passed {
			v.report.Status = reporting.StatusValidated
		} else {
			v.report.Status = reporting.StatusFailed
		}
	}
	return cloneReport(v.report), nil
}

// State returns the active report (copied) and the view's transient
// error message.
func (v *ReportView) State() (*reporting.Report, string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneReport(v.report), v.errMsg, v.busy
}

// failureBanner prefers the service's own detail over the fallback text.
func failureBanner(err error, fallback string) string {
	var apiErr *reporting.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// cloneReport copies a report deeply enough that callers cannot mutate
// view state through the returned value.
func cloneReport(r *reporting.Report) *reporting.Report {
	if r == nil {
		return nil
	}
	out := *r
	if r.Data != nil {
		out.Data = make(map[string]string, len(r.Data))
		for k, val := range r.Data {
			out.Data[k] = val
		}
	}
	if r.ValidationResults != nil {
		res := *r.ValidationResults
		res.Errors = append([]reporting.ValidationError(nil), r.ValidationResults.Errors...)
		out.ValidationResults = &res
	}
	return &out
}
