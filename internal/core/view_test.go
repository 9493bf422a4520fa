package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fincollect/console/internal/reporting"
)

// stubValidator implements Validator with canned responses.
type stubValidator struct {
	mu sync.Mutex

	report    *reporting.Report
	reportErr error

	result      *reporting.ValidationResult
	resultErr   error
	validations int

	// block, when set, makes TriggerValidation wait until released.
	block chan struct{}
}

func (s *stubValidator) ReportByID(ctx context.Context, id int64) (*reporting.Report, error) {
	if s.reportErr != nil {
		return nil, s.reportErr
	}
	r := *s.report
	return &r, nil
}

func (s *stubValidator) TriggerValidation(ctx context.Context, id int64) (*reporting.ValidationResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.validations++
	s.mu.Unlock()
	if s.resultErr != nil {
		return nil, s.resultErr
	}
	return s.result, nil
}

func submittedReport(id int64) *reporting.Report {
	return &reporting.Report{
		ID:              id,
		SeriesID:        "FR-2052a",
		InstitutionID:   "inst-1",
		ReportingPeriod: "2024-Q4",
		Status:          reporting.StatusSubmitted,
		Data:            map[string]string{"A1": "12.5"},
	}
}

func TestView_OpenAndValidatePassed(t *testing.T) {
	api := &stubValidator{
		report: submittedReport(42),
		result: &reporting.ValidationResult{Passed: true, Errors: []reporting.ValidationError{}},
	}
	v := NewReportView(api)
	ctx := context.Background()

	report, err := v.Open(ctx, 42)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if report.Status != reporting.StatusSubmitted {
		t.Errorf("Status = %q, want submitted", report.Status)
	}

	report, err = v.Validate(ctx, 42)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Status != reporting.StatusValidated {
		t.Errorf("Status = %q, want validated", report.Status)
	}
	if report.ValidationResults == nil || !report.ValidationResults.Passed {
		t.Errorf("ValidationResults = %+v", report.ValidationResults)
	}
}

func TestView_ValidateFailedStatus(t *testing.T) {
	api := &stubValidator{
		report: submittedReport(42),
		result: &reporting.ValidationResult{
			Passed: false,
			Errors: []reporting.ValidationError{
				{MDRMID: "A1", RuleID: "R-101", Message: "Value out of range"},
			},
		},
	}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)
	report, err := v.Validate(ctx, 42)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Status != reporting.StatusFailed {
		t.Errorf("Status = %q, want failed", report.Status)
	}
	if len(report.ValidationResults.Errors) != 1 {
		t.Errorf("Errors = %+v", report.ValidationResults.Errors)
	}
}

// A re-run replaces the previous result wholesale, never merges.
func TestView_RevalidateReplacesResult(t *testing.T) {
	api := &stubValidator{
		report: submittedReport(42),
		result: &reporting.ValidationResult{
			Passed: false,
			Errors: []reporting.ValidationError{
				{MDRMID: "A1", RuleID: "R-101", Message: "Value out of range"},
				{MDRMID: "A2", RuleID: "R-102", Message: "Missing cross-check"},
			},
		},
	}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)
	v.Validate(ctx, 42)

	// The data was fixed server-side; the second run passes clean
	api.result = &reporting.ValidationResult{Passed: true, Errors: []reporting.ValidationError{}}

	report, err := v.Validate(ctx, 42)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Status != reporting.StatusValidated {
		t.Errorf("Status = %q, want validated after clean re-run", report.Status)
	}
	if len(report.ValidationResults.Errors) != 0 {
		t.Errorf("old errors leaked into new result: %+v", report.ValidationResults.Errors)
	}
	if api.validations != 2 {
		t.Errorf("validations = %d, want 2", api.validations)
	}
}

// A failed validation call leaves the displayed report untouched.
func TestView_ValidateCallFailureKeepsReport(t *testing.T) {
	api := &stubValidator{
		report: submittedReport(42),
		result: &reporting.ValidationResult{Passed: true},
	}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)
	v.Validate(ctx, 42)

	api.resultErr = &reporting.APIError{StatusCode: 500, Detail: "Validation engine unavailable"}
	if _, err := v.Validate(ctx, 42); err == nil {
		t.Fatal("Validate() expected error")
	}

	report, errMsg, busy := v.State()
	if report.Status != reporting.StatusValidated {
		t.Errorf("Status = %q, previous good result must survive", report.Status)
	}
	if report.ValidationResults == nil || !report.ValidationResults.Passed {
		t.Error("previous validation result must survive a failed call")
	}
	if errMsg != "Validation engine unavailable" {
		t.Errorf("errMsg = %q, want the service detail verbatim", errMsg)
	}
	if busy {
		t.Error("busy = true after call returned")
	}
}

func TestView_ValidateWrongTarget(t *testing.T) {
	api := &stubValidator{report: submittedReport(42), result: &reporting.ValidationResult{Passed: true}}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)
	if _, err := v.Validate(ctx, 99); !errors.Is(err, ErrStaleView) {
		t.Fatalf("Validate(99) = %v, want ErrStaleView", err)
	}
}

// A result that arrives after the operator left the report is dropped.
func TestView_StaleResultDropped(t *testing.T) {
	api := &stubValidator{
		report: submittedReport(42),
		result: &reporting.ValidationResult{Passed: true},
		block:  make(chan struct{}),
	}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)

	done := make(chan error, 1)
	go func() {
		_, err := v.Validate(ctx, 42)
		done <- err
	}()

	// Wait until the validation call is in flight
	deadline := time.After(time.Second)
	for {
		_, _, busy := v.State()
		if busy {
			break
		}
		select {
		case <-deadline:
			t.Fatal("validation never became busy")
		case <-time.After(time.Millisecond):
		}
	}

	// Navigate away, then release the in-flight call
	v.Leave()
	close(api.block)

	if err := <-done; !errors.Is(err, ErrStaleView) {
		t.Fatalf("Validate() = %v, want ErrStaleView", err)
	}

	report, _, _ := v.State()
	if report != nil {
		t.Error("stale result must not resurrect the view")
	}
}

func TestView_OpenSupersedesOpen(t *testing.T) {
	api := &stubValidator{report: submittedReport(42), result: &reporting.ValidationResult{Passed: true}}
	v := NewReportView(api)
	ctx := context.Background()

	v.Open(ctx, 42)
	api.report = submittedReport(43)
	report, err := v.Open(ctx, 43)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if report.ID != 43 {
		t.Errorf("ID = %d, want 43", report.ID)
	}

	// A validation aimed at the old report is refused
	if _, err := v.Validate(ctx, 42); !errors.Is(err, ErrStaleView) {
		t.Errorf("Validate(42) = %v, want ErrStaleView", err)
	}
}

func TestView_StateCopies(t *testing.T) {
	api := &stubValidator{report: submittedReport(42), result: &reporting.ValidationResult{Passed: true}}
	v := NewReportView(api)
	v.Open(context.Background(), 42)

	snap, _, _ := v.State()
	snap.Data["A1"] = "tampered"
	snap.Status = reporting.StatusFailed

	fresh, _, _ := v.State()
	if fresh.Data["A1"] != "12.5" || fresh.Status != reporting.StatusSubmitted {
		t.Error("State() must return copies, not shared references")
	}
}
