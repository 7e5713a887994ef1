// HTTP plumbing shared by the REST-backed catalogs
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

const maxErrorBody = 4 << 10

// apiClient performs JSON requests against a REST base URL and maps failures onto the shared
// error taxonomy.
type apiClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

func newAPIClient(service, baseURL string, client *http.Client) *apiClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &apiClient{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		header:     make(http.Header),
	}
}

func (a *apiClient) endpoint(path string, query url.Values) string {
	u := a.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and decodes a JSON body into out when out is non-nil.
func (a *apiClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, header http.Header, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range a.header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, transportError(a.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.Header, StatusError(a.service, resp.StatusCode, resp.Header.Get("Retry-After"), msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("%w: %s: failed to decode response: %v", shared.ErrTransport, a.service, err)
		}
	}
	return resp.Header, nil
}

func (a *apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	_, err := a.do(ctx, http.MethodGet, path, query, nil, nil, out)
	return err
}

func (a *apiClient) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	header := http.Header{"Content-Type": {"application/json"}}
	_, err = a.do(ctx, http.MethodPost, path, nil, bytes.NewReader(data), header, out)
	return err
}

func (a *apiClient) postForm(ctx context.Context, path string, query, form url.Values, header http.Header, out any) error {
	h := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	for k, v := range header {
		h[k] = v
	}
	_, err := a.do(ctx, http.MethodPost, path, query, strings.NewReader(form.Encode()), h, out)
	return err
}

// StatusError maps a non-2xx HTTP status onto the shared error taxonomy.
func StatusError(service string, status int, retryAfter string, body []byte) error {
	detail := errorDetail(body)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned 401%s", shared.ErrUnauthenticated, service, detail)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned 403%s", shared.ErrForbidden, service, detail)
	case status == http.StatusTooManyRequests:
		return &shared.RateLimitError{Service: service, RetryAfter: parseRetryAfter(retryAfter, time.Now())}
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s returned 404%s", shared.ErrNotFound, service, detail)
	case status >= 500:
		return fmt.Errorf("%w: %s returned %d%s", shared.ErrTransport, service, status, detail)
	default:
		return fmt.Errorf("%w: %s returned %d%s", shared.ErrInvalidInput, service, status, detail)
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func errorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail      string `json:"detail"`
		UserMessage string `json:"userMessage"`
		Message     string `json:"message"`
		Error       any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Detail, payload.UserMessage, payload.Message} {
			if s != "" {
				return ": " + s
			}
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return ": " + s
		}
	}

	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return ": " + s
}

// transportError classifies a failed round trip. Cancellation and auth failures from the token
// source pass through unchanged.
func transportError(service string, err error) error {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrRateLimited), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrTransport, service, err)
	}
}
