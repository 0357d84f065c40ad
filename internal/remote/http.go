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
	"strings"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

const (
	// APITimeout is the timeout for a single API call.
	APITimeout = 5 * time.Second

	// TotalCountHeader carries the unpaged match count on list responses.
	TotalCountHeader = "X-Total-Count"

	// DefaultHealthPath is polled by the connectivity monitor.
	DefaultHealthPath = "/health"
)

// StatusError is returned when the service answers with a non-2xx code.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPService implements Service against a json-server style REST API:
//
//	GET    {base}/tasks?_page&_limit&_sort&_order&status
//	POST   {base}/tasks
//	PATCH  {base}/tasks/{id}
//	DELETE {base}/tasks/{id}
type HTTPService struct {
	baseURL    string
	healthPath string
	client     *http.Client
}

// NewHTTPService creates a client for the service rooted at baseURL.
// If httpClient is nil, http.DefaultClient is used.
func NewHTTPService(baseURL string, httpClient *http.Client) *HTTPService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: DefaultHealthPath,
		client:     httpClient,
	}
}

// WithHealthPath overrides the path used by Ping.
func (s *HTTPService) WithHealthPath(path string) *HTTPService {
	if path != "" {
		s.healthPath = "/" + strings.TrimLeft(path, "/")
	}
	return s
}

// List implements Service.
func (s *HTTPService) List(ctx context.Context, q schema.Query) (schema.Page, error) {
	params := url.Values{}
	params.Set("_page", strconv.Itoa(q.Page))
	params.Set("_limit", strconv.Itoa(q.Limit))
	params.Set("_sort", string(q.SortBy))
	params.Set("_order", string(q.Order))
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}

	var items []schema.Task
	resp, err := s.do(ctx, http.MethodGet, "/tasks?"+params.Encode(), nil, &items)
	if err != nil {
		return schema.Page{}, err
	}

	total := 0
	if h := resp.Header.Get(TotalCountHeader); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			total = n
		}
	}
	if items == nil {
		items = []schema.Task{}
	}
	return schema.Page{Items: items, Total: total}, nil
}

// Create implements Service.
func (s *HTTPService) Create(ctx context.Context, task schema.Task) (schema.Task, error) {
	task.ID = ""
	var created schema.Task
	if _, err := s.do(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return schema.Task{}, err
	}
	return created, nil
}

// Update implements Service.
func (s *HTTPService) Update(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error) {
	var updated schema.Task
	if _, err := s.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), patch, &updated); err != nil {
		return schema.Task{}, err
	}
	return updated, nil
}

// Delete implements Service.
func (s *HTTPService) Delete(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
	return err
}

// Ping checks that the service answers on its health path. It matches
// connectivity.CheckFunc.
func (s *HTTPService) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.healthPath, nil, nil)
	return err
}

// do performs one request bounded by APITimeout. body is JSON-encoded when
// non-nil; out is decoded from the response when non-nil. Every failure
// wraps schema.ErrNetwork.
func (s *HTTPService) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp, fmt.Errorf("%w: %w", schema.ErrNetwork, &StatusError{
			Method: method,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		})
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp, fmt.Errorf("%w: failed to decode response: %w", schema.ErrNetwork, err)
		}
	}
	return resp, nil
}
