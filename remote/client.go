package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	projectIDHeader = "X-Project-Id"
	publicKeyHeader = "X-Public-Key"
)

// Record is a row of the record API keyed by backend field name.
type Record map[string]any

// Response is the envelope of single record and list calls.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Data holds a record, a list of records or null.
	Data    sonic.NoCopyRawMessage `json:"data,omitempty"`
	Results []Result               `json:"results,omitempty"`
}

// Result is one entry of a batch response.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("record api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("record api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the record management API of one project.
type Client struct {
	baseURL   string
	projectID string
	publicKey string
	http      *http.Client
}

// NewClient creates a client. A zero timeout keeps the http.Client default.
func NewClient(baseURL, projectID, publicKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		publicKey: publicKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// FetchRecords lists every record of table with the requested fields.
func (c *Client) FetchRecords(ctx context.Context, table string, fields []string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/tables/"+url.PathEscape(table)+"/query", map[string]any{"fields": fields})
}

// GetRecordByID loads one record.
func (c *Client) GetRecordByID(ctx context.Context, table, id string, fields []string) (*Response, error) {
	path := "/tables/" + url.PathEscape(table) + "/records/" + url.PathEscape(id)
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) CreateRecord(ctx context.Context, table string, records []Record) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/tables/"+url.PathEscape(table)+"/records", map[string]any{"records": records})
}

func (c *Client) UpdateRecord(ctx context.Context, table string, records []Record) (*Response, error) {
	return c.do(ctx, http.MethodPatch, "/tables/"+url.PathEscape(table)+"/records", map[string]any{"records": records})
}

func (c *Client) DeleteRecord(ctx context.Context, table string, ids []string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "/tables/"+url.PathEscape(table)+"/records", map[string]any{"RecordIds": ids})
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(projectIDHeader, c.projectID)
	req.Header.Set(publicKeyHeader, c.publicKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out Response
	if len(bytes.TrimSpace(data)) > 0 {
		if err := sonic.Unmarshal(data, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: out.Message}
	}
	return &out, nil
}
