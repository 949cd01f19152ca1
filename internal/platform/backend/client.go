// Package backend talks to the analytics backend: the snapshot WebSocket
// stream and the replay control REST endpoints.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ControlClient issues replay control requests. Each call is exactly one
// HTTP request; there is no retry.
type ControlClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewControlClient creates a client for the backend HTTP root, e.g.
// "http://localhost:8000". A non-positive timeout defaults to 10 seconds.
func NewControlClient(baseURL string, timeout time.Duration) *ControlClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ControlClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostReplay sends POST {base}/replay/{path} with an empty body and returns
// the X-Request-ID it attached.
func (c *ControlClient) PostReplay(ctx context.Context, path string) (string, error) {
	reqID := uuid.NewString()

	endpoint, err := url.JoinPath(c.baseURL, "replay", path)
	if err != nil {
		return reqID, fmt.Errorf("backend/control: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return reqID, fmt.Errorf("backend/control: create request: %w", err)
	}
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reqID, fmt.Errorf("backend/control: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return reqID, fmt.Errorf("backend/control: %w", &StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(respBody)),
		})
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return reqID, nil
}
