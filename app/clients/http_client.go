package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPError is returned when the coordinator answers with an unexpected status
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: server returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an HTTPError with the given status code
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// HTTPClient is a thin resty wrapper that applies the API key and per-call deadlines
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a new HTTP client. Retries are disabled: every caller
// decides on its own whether a failed call is repeated on a later tick.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	return &HTTPClient{client: client}
}

// Request describes one coordinator call
type Request struct {
	Method   string
	Path     string
	Body     interface{}
	Result   interface{}
	Timeout  time.Duration
	Expected []int

	// Prepare customises the request, e.g. to attach multipart parts
	Prepare func(*resty.Request)
}

// Do performs the request and returns the raw response. Statuses outside
// Expected (default 200) are reported as *HTTPError.
func (c *HTTPClient) Do(ctx context.Context, r Request) (*resty.Response, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req := c.client.R().SetContext(ctx)
	if r.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.Body)
	}
	if r.Result != nil {
		req.SetResult(r.Result).ForceContentType("application/json")
	}
	if r.Prepare != nil {
		r.Prepare(req)
	}

	resp, err := req.Execute(r.Method, r.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}

	expected := r.Expected
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}
	for _, code := range expected {
		if resp.StatusCode() == code {
			return resp, nil
		}
	}

	return resp, &HTTPError{
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: resp.StatusCode(),
		Body:       truncate(resp.String(), 512),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
