package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fincollect/console/internal/core"
	"github.com/fincollect/console/internal/reporting"
)

// fakeAPI implements core.ReportingAPI with canned data.
type fakeAPI struct {
	series       map[string]*reporting.Series
	institutions []reporting.Institution
	createID     int64
	createErr    error
	report       *reporting.Report
	result       *reporting.ValidationResult
}

func (f *fakeAPI) SeriesByID(ctx context.Context, id string) (*reporting.Series, error) {
	s, ok := f.series[id]
	if !ok {
		return nil, &reporting.APIError{StatusCode: 404, Detail: "Series not found"}
	}
	return s, nil
}

func (f *fakeAPI) Institutions(ctx context.Context) ([]reporting.Institution, error) {
	return f.institutions, nil
}

func (f *fakeAPI) CreateReport(ctx context.Context, sub reporting.Submission) (int64, error) {
	return f.createID, f.createErr
}

func (f *fakeAPI) CreateReportCSV(ctx context.Context, sel reporting.Selections, filename string, file []byte) (int64, error) {
	return f.createID, f.createErr
}

func (f *fakeAPI) ReportByID(ctx context.Context, id int64) (*reporting.Report, error) {
	r := *f.report
	return &r, nil
}

func (f *fakeAPI) TriggerValidation(ctx context.Context, id int64) (*reporting.ValidationResult, error) {
	return f.result, nil
}

func defaultFakeAPI() *fakeAPI {
	return &fakeAPI{
		series: map[string]*reporting.Series{
			"FR-2052a": {
				ID:   "FR-2052a",
				Name: "Liquidity Monitoring",
				Elements: []reporting.SeriesElement{
					{MDRMID: "A1", Name: "Cash", DataType: "number"},
					{MDRMID: "A2", Name: "Notes", DataType: "string"},
				},
			},
		},
		institutions: []reporting.Institution{{ID: "1", Name: "First National", Identifier: "RSSD-1001"}},
		createID:     42,
		report: &reporting.Report{
			ID:              42,
			SeriesID:        "FR-2052a",
			InstitutionID:   "1",
			ReportingPeriod: "2024-Q4",
			Status:          reporting.StatusSubmitted,
			Data:            map[string]string{"A1": "12.5"},
		},
		result: &reporting.ValidationResult{Passed: true, Errors: []reporting.ValidationError{}},
	}
}

func newTestServer(api core.ReportingAPI) *Server {
	svc := core.NewService(api, nil, core.ServiceConfig{})
	return NewServer(svc, Options{})
}

func doJSON(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) sessionStateResponse {
	t.Helper()
	var state sessionStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v (body: %s)", err, rec.Body.String())
	}
	return state
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/wizard", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	return decodeState(t, rec).SessionID
}

// ============================================================================
// Wizard endpoints
// ============================================================================

func TestCreateSession(t *testing.T) {
	s := newTestServer(defaultFakeAPI())

	rec := doJSON(t, s, http.MethodPost, "/api/wizard", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	state := decodeState(t, rec)
	if state.SessionID == "" {
		t.Error("session_id is empty")
	}
	if state.Wizard.Step != "select" {
		t.Errorf("step = %q, want select", state.Wizard.Step)
	}
	if state.Wizard.Mode != core.ModeForm {
		t.Errorf("mode = %q, want form", state.Wizard.Mode)
	}
}

func TestCreateSession_PresetInstitution(t *testing.T) {
	s := newTestServer(defaultFakeAPI())

	rec := doJSON(t, s, http.MethodPost, "/api/wizard", `{"institution_id": "1"}`, nil)
	state := decodeState(t, rec)
	if !state.Wizard.InstitutionLocked || state.Wizard.InstitutionID != "1" {
		t.Errorf("wizard = %+v, want locked institution", state.Wizard)
	}
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(defaultFakeAPI())

	rec := doJSON(t, s, http.MethodPost, "/api/wizard/nope/series", `{"series_id": "FR-2052a"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var errResp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &errResp)
	if errResp.Code != "SES001" {
		t.Errorf("code = %q, want SES001", errResp.Code)
	}
}

func TestSelectSeries(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/wizard/"+id+"/series", `{"series_id": "FR-2052a"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	state := decodeState(t, rec)
	if len(state.Wizard.Fields) != 2 {
		t.Errorf("fields = %d, want 2", len(state.Wizard.Fields))
	}
}

func TestSelectSeries_MissingBody(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/wizard/"+id+"/series", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSelectSeries_UpstreamFailureReturnsBannerState(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	// Unknown series: the reporting service answers 404, the wizard
	// converts it to a banner and the handler returns refreshed state
	rec := doJSON(t, s, http.MethodPost, "/api/wizard/"+id+"/series", `{"series_id": "NOPE"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	state := decodeState(t, rec)
	if state.Wizard.Banner == "" {
		t.Error("expected banner after failed schema load")
	}
	if len(state.Wizard.Fields) != 0 {
		t.Error("fields must be cleared after failed schema load")
	}
}

func TestNext_PreconditionBanner(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/wizard/"+id+"/next", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	state := decodeState(t, rec)
	if state.Wizard.Banner != "Please select a series." {
		t.Errorf("banner = %q", state.Wizard.Banner)
	}
	if state.Wizard.Step != "select" {
		t.Errorf("step = %q, want select", state.Wizard.Step)
	}
}

func TestFullFormSubmission(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)
	base := "/api/wizard/" + id

	doJSON(t, s, http.MethodPost, base+"/series", `{"series_id": "FR-2052a"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/institution", `{"institution_id": "1"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/period", `{"reporting_period": "2024-Q4"}`, nil)

	rec := doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	if state := decodeState(t, rec); state.Wizard.Step != "enter" {
		t.Fatalf("step = %q, want enter", state.Wizard.Step)
	}

	doJSON(t, s, http.MethodPost, base+"/field", `{"index": 0, "value": "12.5"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/field", `{"index": 1, "value": "reviewed"}`, nil)

	rec = doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	state := decodeState(t, rec)
	if state.Wizard.Step != "submitted" {
		t.Errorf("step = %q, want submitted", state.Wizard.Step)
	}
	if state.Wizard.ReportID != 42 {
		t.Errorf("report_id = %d, want 42", state.Wizard.ReportID)
	}
	if state.Wizard.Notice != "Report submitted successfully with ID: 42" {
		t.Errorf("notice = %q", state.Wizard.Notice)
	}
}

func TestFormSubmission_InvalidFieldsAnnotated(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)
	base := "/api/wizard/" + id

	doJSON(t, s, http.MethodPost, base+"/series", `{"series_id": "FR-2052a"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/institution", `{"institution_id": "1"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/period", `{"reporting_period": "2024-Q4"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	doJSON(t, s, http.MethodPost, base+"/field", `{"index": 0, "value": "abc"}`, nil)

	rec := doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	state := decodeState(t, rec)
	if state.Wizard.Step != "enter" {
		t.Errorf("step = %q, want enter", state.Wizard.Step)
	}
	if state.Wizard.Fields[0].Err == nil || state.Wizard.Fields[1].Err == nil {
		t.Error("both invalid fields must be annotated")
	}
}

func TestSetMode_Invalid(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/wizard/"+id+"/mode", `{"mode": "xml"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAttachFile(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "q4.csv")
	part.Write([]byte("A1,A2\n12.5,ok\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/wizard/"+id+"/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	state := decodeState(t, rec)
	if state.Wizard.FileName != "q4.csv" {
		t.Errorf("file_name = %q, want q4.csv", state.Wizard.FileName)
	}
}

func TestAttachFile_MissingPart(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/wizard/"+id+"/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEndSession(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodDelete, "/api/wizard/"+id+"/", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/wizard/"+id+"/", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 after delete", rec.Code)
	}
}

// ============================================================================
// Reference data
// ============================================================================

func TestInstitutions(t *testing.T) {
	s := newTestServer(defaultFakeAPI())

	rec := doJSON(t, s, http.MethodGet, "/api/institutions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var insts []reporting.Institution
	if err := json.Unmarshal(rec.Body.Bytes(), &insts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(insts) != 1 || insts[0].Identifier != "RSSD-1001" {
		t.Errorf("insts = %+v", insts)
	}
}

// ============================================================================
// Report view endpoints
// ============================================================================

func TestReportView(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)
	hdr := map[string]string{"X-Session-ID": id}

	rec := doJSON(t, s, http.MethodGet, "/api/reports/42", "", hdr)
	if rec.Code != http.StatusOK {
		t.Fatalf("open status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp reportResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Report == nil || resp.Report.Status != reporting.StatusSubmitted {
		t.Fatalf("report = %+v", resp.Report)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/reports/42/validate", "", hdr)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Report.Status != reporting.StatusValidated {
		t.Errorf("status = %q, want validated", resp.Report.Status)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/reports/close", "", hdr)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rec.Code)
	}
}

func TestReportView_MissingSessionHeader(t *testing.T) {
	s := newTestServer(defaultFakeAPI())

	rec := doJSON(t, s, http.MethodGet, "/api/reports/42", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReportView_BadReportID(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/reports/abc", "", map[string]string{"X-Session-ID": id})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(defaultFakeAPI())
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

// Dispatch rejection carries the service detail into the banner.
func TestSubmission_UpstreamRejection(t *testing.T) {
	api := defaultFakeAPI()
	api.createErr = &reporting.APIError{StatusCode: 422, Detail: "Reporting period is closed"}
	s := newTestServer(api)
	id := createSession(t, s)
	base := "/api/wizard/" + id

	doJSON(t, s, http.MethodPost, base+"/series", `{"series_id": "FR-2052a"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/institution", `{"institution_id": "1"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/period", `{"reporting_period": "2024-Q4"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	doJSON(t, s, http.MethodPost, base+"/field", `{"index": 0, "value": "12.5"}`, nil)
	doJSON(t, s, http.MethodPost, base+"/field", `{"index": 1, "value": "ok"}`, nil)

	rec := doJSON(t, s, http.MethodPost, base+"/next", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	state := decodeState(t, rec)
	if state.Wizard.Step != "enter" {
		t.Errorf("step = %q, want enter after rejection", state.Wizard.Step)
	}
	if state.Wizard.Banner != "Reporting period is closed" {
		t.Errorf("banner = %q", state.Wizard.Banner)
	}
}
