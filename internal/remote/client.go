// Package remote talks to the record API: a generic table/record capability
// over HTTP and a workout adapter that translates between records and models.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/fittrack/internal/records"
)

// Capability is the tabular record API. Every call returns the response
// envelope; a transport or protocol problem is returned as an error instead.
type Capability interface {
	FetchRecords(ctx context.Context, table string, fields []string) (*records.Response, error)
	GetRecordByID(ctx context.Context, table, id string, fields []string) (*records.Response, error)
	CreateRecord(ctx context.Context, table string, recs []records.Record) (*records.Response, error)
	UpdateRecord(ctx context.Context, table string, recs []records.Record) (*records.Response, error)
	DeleteRecord(ctx context.Context, table string, ids []string) (*records.Response, error)
}

// HTTPClient implements Capability against the record API server.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// Compile-time check: HTTPClient satisfies Capability.
var _ Capability = (*HTTPClient)(nil)

// NewHTTPClient creates a client for baseURL. Failed requests are retried up
// to 3 times with exponential backoff.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   3,
		backoff:    time.Second,
	}
}

func tablePath(table string) string {
	return "/api/v1/tables/" + url.PathEscape(table) + "/records"
}

func fieldParams(fields []string) url.Values {
	if len(fields) == 0 {
		return nil
	}
	return url.Values{"fields": {strings.Join(fields, ",")}}
}

func (c *HTTPClient) FetchRecords(ctx context.Context, table string, fields []string) (*records.Response, error) {
	return c.do(ctx, http.MethodGet, tablePath(table), fieldParams(fields), nil)
}

func (c *HTTPClient) GetRecordByID(ctx context.Context, table, id string, fields []string) (*records.Response, error) {
	return c.do(ctx, http.MethodGet, tablePath(table)+"/"+url.PathEscape(id), fieldParams(fields), nil)
}

func (c *HTTPClient) CreateRecord(ctx context.Context, table string, recs []records.Record) (*records.Response, error) {
	return c.do(ctx, http.MethodPost, tablePath(table), nil, records.WriteRequest{Records: recs})
}

func (c *HTTPClient) UpdateRecord(ctx context.Context, table string, recs []records.Record) (*records.Response, error) {
	return c.do(ctx, http.MethodPatch, tablePath(table), nil, records.WriteRequest{Records: recs})
}

func (c *HTTPClient) DeleteRecord(ctx context.Context, table string, ids []string) (*records.Response, error) {
	return c.do(ctx, http.MethodDelete, tablePath(table), nil, records.DeleteRequest{RecordIDs: ids})
}

// do sends one request, retrying transport errors and 5xx responses. Any
// other status is decoded into the response envelope and returned as is.
func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body any) (*records.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: marshal %s body: %w", path, err)
		}
	}

	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("httpclient: %s %s: %w", method, path, ctx.Err())
			}
		}

		resp, retry, err := c.send(ctx, method, u, data)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("httpclient: %s %s: %w", method, path, lastErr)
}

func (c *HTTPClient) send(ctx context.Context, method, u string, data []byte) (*records.Response, bool, error) {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out records.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		out.NotFound = true
	}
	if !out.Success && out.Message == "" {
		out.Message = http.StatusText(resp.StatusCode)
	}
	return &out, false, nil
}
