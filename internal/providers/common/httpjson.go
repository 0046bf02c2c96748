package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	errorBodyLimit   = 2048
	DefaultBodyLimit = 4 * 1024 * 1024
)

// StatusError is returned for any non-2xx upstream answer.
type StatusError struct {
	Provider   string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s HTTP %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s HTTP %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// RetryAfterHint is the wait the upstream asked for, zero when it did not.
func (e *StatusError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// ParseRetryAfter reads a Retry-After value in seconds or as an HTTP date.
func ParseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}
	if at, err := http.ParseTime(raw); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

// Request describes one GET against a JSON API.
type Request struct {
	Provider  string
	URL       string
	UserAgent string
	BodyLimit int64
}

// GetJSON issues req with ctx and decodes the body into out.
func GetJSON(ctx context.Context, client *http.Client, req Request, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return err
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{
			Provider:   req.Provider,
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	limit := req.BodyLimit
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", req.Provider, err)
	}
	return nil
}

// JoinPath appends path-escaped segments to base. Segments may contain
// slashes or spaces from user input; each is escaped as a single segment.
func JoinPath(base string, segments ...string) (string, error) {
	uri, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if uri.Scheme == "" || uri.Host == "" {
		return "", fmt.Errorf("invalid endpoint: %q", base)
	}
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return uri.String() + "/" + strings.Join(escaped, "/"), nil
}
