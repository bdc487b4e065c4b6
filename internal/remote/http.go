package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// Client talks JSON over HTTP to the report and template services.
// It implements TemplateService and ReportService.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "https://api.example.com".
	BaseURL string

	// Token is the bearer token attached to every request.
	Token string

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// NewClient creates an HTTP client for the remote services.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		http:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// apiError is the service's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do issues one request and decodes the response body into out (when
// out is non-nil). Non-2xx responses are returned as errors carrying
// the service's error message when one was provided.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
		}
	}

	return nil
}

// FetchTemplateWithSections implements TemplateService.
func (c *Client) FetchTemplateWithSections(ctx context.Context, templateID string) (*inspection.Template, error) {
	var tmpl inspection.Template
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(templateID), nil, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to fetch template %s: %w", templateID, err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("template %s is unusable: %w", templateID, err)
	}
	return &tmpl, nil
}

// createReportRequest is the report creation payload.
type createReportRequest struct {
	OrgID      string `json:"org_id"`
	RecordID   string `json:"record_id"`
	TemplateID string `json:"template_id"`
	UserID     string `json:"user_id"`
}

// CreateReport implements ReportService.
func (c *Client) CreateReport(ctx context.Context, orgID, recordID, templateID, userID string) (*inspection.Report, error) {
	var report inspection.Report
	req := createReportRequest{OrgID: orgID, RecordID: recordID, TemplateID: templateID, UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/api/reports", req, &report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

// FetchReportByID implements ReportService.
func (c *Client) FetchReportByID(ctx context.Context, reportID string) (*inspection.Report, error) {
	var report inspection.Report
	if err := c.do(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(reportID), nil, &report); err != nil {
		return nil, fmt.Errorf("failed to fetch report %s: %w", reportID, err)
	}
	return &report, nil
}

// FetchReportResponses implements ReportService.
func (c *Client) FetchReportResponses(ctx context.Context, reportID string) ([]*inspection.RemoteResponse, error) {
	var responses []*inspection.RemoteResponse
	path := "/api/reports/" + url.PathEscape(reportID) + "/responses"
	if err := c.do(ctx, http.MethodGet, path, nil, &responses); err != nil {
		return nil, fmt.Errorf("failed to fetch responses for report %s: %w", reportID, err)
	}
	return responses, nil
}

// UpsertResponse implements ReportService.
func (c *Client) UpsertResponse(ctx context.Context, params UpsertParams) (*inspection.RemoteResponse, error) {
	var response inspection.RemoteResponse
	path := "/api/reports/" + url.PathEscape(params.ReportID) +
		"/responses/" + url.PathEscape(params.TemplateItemID)
	if err := c.do(ctx, http.MethodPut, path, params, &response); err != nil {
		return nil, fmt.Errorf("failed to upsert response for item %s: %w", params.TemplateItemID, err)
	}
	return &response, nil
}

// submitRequest is the submission payload.
type submitRequest struct {
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmitReport implements ReportService.
func (c *Client) SubmitReport(ctx context.Context, reportID string, submittedAt time.Time) error {
	path := "/api/reports/" + url.PathEscape(reportID) + "/submit"
	if err := c.do(ctx, http.MethodPost, path, submitRequest{SubmittedAt: submittedAt}, nil); err != nil {
		return fmt.Errorf("failed to submit report %s: %w", reportID, err)
	}
	return nil
}

// ListReports implements ReportService.
func (c *Client) ListReports(ctx context.Context, orgID, cursor string, limit int) (*ReportPage, error) {
	if _, err := DecodeCursor(cursor); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("org_id", orgID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page ReportPage
	if err := c.do(ctx, http.MethodGet, "/api/reports?"+q.Encode(), nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return &page, nil
}
