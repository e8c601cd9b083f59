package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	baseURL = "https://api.github.com"

	// maxConcurrentFetches bounds the parallel file-content fetch batch.
	maxConcurrentFetches = 10
)

// APIError is a non-2xx response from the GitHub API. StatusCode lets
// callers decide whether the failure is transient (rate limiting).
type APIError struct {
	StatusCode int
	Operation  string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Operation, e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from an error chain.
// Returns 0 if the error carries no status.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// tokenTransport authenticates requests with a bearer token, the auth mode
// used when running inside CI with the workflow's token.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

// Client provides methods to interact with the GitHub API.
type Client struct {
	httpClient *http.Client
}

// NewTokenClient creates a client authenticated with a personal access or
// workflow token.
func NewTokenClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &tokenTransport{token: token},
			Timeout:   30 * time.Second,
		},
	}
}

// NewAppClient creates a client authenticated as a GitHub App installation.
// The privateKey should be the PEM-encoded private key of the App.
func NewAppClient(appID, installationID int64, privateKey []byte) (*Client, error) {
	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}, nil
}

// do issues a request and decodes the JSON response into out (if non-nil).
// Non-2xx statuses become an *APIError carrying the status code.
func (c *Client) do(ctx context.Context, method, url, operation string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Operation: operation, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, prNumber int) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", baseURL, owner, repo, prNumber)
	var pr PullRequest
	if err := c.do(ctx, "GET", url, "fetch pull request", nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListFiles fetches one page of the files changed in a pull request,
// including their patch text.
func (c *Client) ListFiles(ctx context.Context, owner, repo string, prNumber, page, perPage int) ([]PullRequestFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d", baseURL, owner, repo, prNumber, perPage, page)
	var files []PullRequestFile
	if err := c.do(ctx, "GET", url, "list files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// ListIssueComments fetches one page of the standalone comments on a pull
// request (PR comments live on the issues API).
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, prNumber, page, perPage int) ([]IssueComment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=%d&page=%d", baseURL, owner, repo, prNumber, perPage, page)
	var comments []IssueComment
	if err := c.do(ctx, "GET", url, "list comments", nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// DeleteIssueComment deletes a standalone comment.
func (c *Client) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", baseURL, owner, repo, commentID)
	return c.do(ctx, "DELETE", url, "delete comment", nil, nil)
}

// CreateIssueComment posts a standalone comment on a pull request.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, prNumber int, body string) (*IssueComment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", baseURL, owner, repo, prNumber)
	var comment IssueComment
	if err := c.do(ctx, "POST", url, "create comment", &CommentRequest{Body: body}, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListReviews fetches all reviews for a pull request.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]Review, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", baseURL, owner, repo, prNumber)
	var reviews []Review
	if err := c.do(ctx, "GET", url, "list reviews", nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// DismissReview dismisses a review. Reviews cannot be deleted, only
// dismissed, and dismissal fails for reviews in some states.
func (c *Client) DismissReview(ctx context.Context, owner, repo string, prNumber int, reviewID int64, message string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews/%d/dismissals", baseURL, owner, repo, prNumber, reviewID)
	return c.do(ctx, "PUT", url, "dismiss review", map[string]string{"message": message}, nil)
}

// CreateReview posts a review on a pull request.
func (c *Client) CreateReview(ctx context.Context, owner, repo string, prNumber int, review *ReviewRequest) (*Review, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", baseURL, owner, repo, prNumber)
	var created Review
	if err := c.do(ctx, "POST", url, "create review", review, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// FetchFileContent fetches the content of a file at a ref.
// A missing file returns empty content, not an error.
func (c *Client) FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", baseURL, owner, repo, path, ref)

	var content FileContent
	if err := c.do(ctx, "GET", url, "fetch file", nil, &content); err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}

	// The contents API wraps base64 at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}

	return string(decoded), nil
}

// FetchMultipleFiles fetches multiple files concurrently at a ref.
// Returns a map of path -> content. A fetch failure for one file only
// omits that file from the result; it never aborts the batch.
func (c *Client) FetchMultipleFiles(ctx context.Context, owner, repo string, paths []string, ref string) map[string]string {
	contents := make([]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(maxConcurrentFetches)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			content, err := c.FetchFileContent(gctx, owner, repo, path, ref)
			if err != nil {
				// Missing context for one file is tolerable.
				return nil
			}
			contents[i] = content
			return nil
		})
	}

	_ = g.Wait()

	result := make(map[string]string, len(paths))
	for i, path := range paths {
		if contents[i] != "" {
			result[path] = contents[i]
		}
	}
	return result
}
