package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ReviewTimeout is the maximum time to wait for a review service response.
const ReviewTimeout = 3 * time.Minute

// Client talks to the reviewloop review service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewClient creates a review service client.
// baseURL is used as-is after stripping any trailing slash.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: ReviewTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    ReviewTimeout,
	}
}

// Review sends a pull request to the review service and returns its findings.
// The call is not retried; a timeout or non-2xx status is fatal to the run.
func (c *Client) Review(ctx context.Context, reviewReq *ReviewRequest) (*ReviewResponse, error) {
	body, err := json.Marshal(reviewReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/v1/review"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("review request timed out after %s", c.timeout)
		}
		return nil, fmt.Errorf("review request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, respBody)
	}

	var result ReviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode review response: %w", err)
	}

	return &result, nil
}

// statusError maps a review service status code to a distinct error.
// These are all fatal to the run; the review call is never retried.
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return errors.New("review service authentication failed: check your API key")
	case http.StatusBadRequest:
		return fmt.Errorf("review service rejected the request: %s", body)
	case http.StatusTooManyRequests:
		return errors.New("review service rate limit exceeded")
	default:
		return fmt.Errorf("review service error: status %d, body: %s", status, body)
	}
}
