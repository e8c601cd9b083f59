package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testRequest() *ReviewRequest {
	return &ReviewRequest{
		Owner:    "acme",
		Repo:     "widgets",
		PRNumber: 42,
		Title:    "Add retry logic",
		Files: []FileInput{
			{Filename: "retry.go", Status: "modified", Patch: "@@ -1 +1 @@\n-a\n+b\n"},
		},
		Options: Options{Depth: "auto"},
	}
}

func TestReview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/review" {
			t.Errorf("path = %s, want /v1/review", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}

		var req ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Owner != "acme" || req.PRNumber != 42 {
			t.Errorf("request = %s/%d, want acme/42", req.Owner, req.PRNumber)
		}

		json.NewEncoder(w).Encode(ReviewResponse{
			ReviewID: "rev_abc",
			Summary:  "Looks fine.",
			Findings: []Finding{
				{Path: "retry.go", Line: 1, Severity: SeverityLow, Message: "nit"},
			},
			Metrics: Metrics{FilesReviewed: 1, TotalFindings: 1, EstimatedCost: 0.05},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.Review(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	if resp.ReviewID != "rev_abc" {
		t.Errorf("ReviewID = %q, want rev_abc", resp.ReviewID)
	}
	if len(resp.Findings) != 1 {
		t.Errorf("Findings = %d, want 1", len(resp.Findings))
	}
	if resp.Metrics.EstimatedCost != 0.05 {
		t.Errorf("EstimatedCost = %v, want 0.05", resp.Metrics.EstimatedCost)
	}
}

func TestReviewStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			wantMsg: "review service authentication failed: check your API key",
		},
		{
			name:    "bad request echoes body",
			status:  http.StatusBadRequest,
			body:    `{"error":"missing files"}`,
			wantMsg: "review service rejected the request",
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			wantMsg: "review service rate limit exceeded",
		},
		{
			name:    "server error includes status",
			status:  http.StatusBadGateway,
			wantMsg: "review service error: status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key")
			_, err := client.Review(context.Background(), testRequest())
			if err == nil {
				t.Fatal("Review() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.wantMsg)
			}
			if tt.body != "" && !strings.Contains(err.Error(), tt.body) {
				t.Errorf("error = %v, want echoed body %q", err, tt.body)
			}
		})
	}
}

func TestReviewRespectsContext(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first so the server notices the client hanging
		// up; otherwise the request context never cancels and Close hangs.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Review(ctx, testRequest())
		errCh <- err
	}()

	<-started
	cancel()

	if err := <-errCh; err == nil {
		t.Fatal("Review() expected error after cancellation")
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	client := NewClient("https://api.example.com/", "key")
	if client.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %q, want trailing slash removed", client.baseURL)
	}
}
