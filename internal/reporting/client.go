package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client calls the external reporting service over HTTP. All calls are
// request/response; there is no streaming. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the reporting service at baseURL.
// A zero timeout disables the client-side deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SeriesByID fetches a series definition with resolved field metadata.
func (c *Client) SeriesByID(ctx context.Context, id string) (*Series, error) {
	var s Series
	if err := c.getJSON(ctx, "/series/"+id, &s); err != nil {
		return nil, fmt.Errorf("fetch series %s: %w", id, err)
	}
	return &s, nil
}

// Institutions fetches the institution reference list.
func (c *Client) Institutions(ctx context.Context) ([]Institution, error) {
	var insts []Institution
	if err := c.getJSON(ctx, "/institutions/", &insts); err != nil {
		return nil, fmt.Errorf("fetch institutions: %w", err)
	}
	return insts, nil
}

// CreateReport creates a report from structured field data and returns
// the identifier the service assigned. The creation call takes no
// identifier: exactly one is produced per successful call, and a failed
// call produces none.
func (c *Client) CreateReport(ctx context.Context, sub Submission) (int64, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return 0, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reports/", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doCreate(req)
}

// CreateReportCSV creates a report from a raw CSV file. The file is sent
// opaquely as a binary part alongside the three selection fields in a
// single multipart request; the column-headers-as-mdrm-ids convention is
// the ingestion endpoint's contract, not checked here.
func (c *Client) CreateReportCSV(ctx context.Context, sel Selections, filename string, file []byte) (int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return 0, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return 0, fmt.Errorf("build multipart: %w", err)
	}

	fields := map[string]string{
		"series_id":        sel.SeriesID,
		"institution_id":   sel.InstitutionID,
		"reporting_period": sel.ReportingPeriod,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return 0, fmt.Errorf("build multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reports/upload-csv", &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doCreate(req)
}

// ReportByID fetches a report, including its data mapping and any prior
// validation result.
func (c *Client) ReportByID(ctx context.Context, id int64) (*Report, error) {
	var r Report
	if err := c.getJSON(ctx, "/reports/"+strconv.FormatInt(id, 10), &r); err != nil {
		return nil, fmt.Errorf("fetch report %d: %w", id, err)
	}
	return &r, nil
}

// TriggerValidation runs server-side validation for an already-submitted
// report and returns the computed result.
func (c *Client) TriggerValidation(ctx context.Context, id int64) (*ValidationResult, error) {
	var res ValidationResult
	path := "/reports/" + strconv.FormatInt(id, 10) + "/validation"
	if err := c.getJSON(ctx, path, &res); err != nil {
		return nil, fmt.Errorf("validation call for report %d: %w", id, err)
	}
	return &res, nil
}

// doCreate executes a report-creation request and decodes the assigned id.
func (c *Client) doCreate(req *http.Request) (int64, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, decodeError(resp)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return created.ID, nil
}

// getJSON performs a GET and decodes a 2xx JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError builds an APIError from a non-2xx response. The service
// reports failures as {"detail": "..."}; anything else yields an empty
// Detail and callers fall back to a generic message.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Detail = strings.TrimSpace(payload.Detail)
	}
	return apiErr
}
