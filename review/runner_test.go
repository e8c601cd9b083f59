package review

import (
	"context"
	"testing"

	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/github"
)

func TestBuildReviewRequest(t *testing.T) {
	input := &RunInput{Owner: "acme", Repo: "widgets", PRNumber: 42}
	pr := &github.PullRequest{
		Title: "Harden session handling",
		Body:  "Rotates tokens on login.",
		User:  &github.User{Login: "casey"},
		Head:  &github.Ref{SHA: "abc123", Ref: "feature"},
		Base:  &github.Ref{SHA: "def456", Ref: "main"},
	}
	files := []github.PullRequestFile{
		{Filename: "auth/session.go", Status: "modified", Patch: "@@ -1 +1 @@\n-a\n+b\n", Additions: 1, Deletions: 1},
	}
	contents := map[string]string{"auth/session.go": "package auth\n"}
	settings := &config.Settings{
		Depth:        config.DepthThorough,
		Instructions: "Focus on concurrency.",
		ProviderKey:  "sk-ant-test",
	}
	opts := &config.Options{Enabled: true, Instructions: "Flag missing audit logs."}

	req := buildReviewRequest(input, pr, files, contents, opts, settings)

	if req.Owner != "acme" || req.Repo != "widgets" || req.PRNumber != 42 {
		t.Errorf("target = %s/%s#%d", req.Owner, req.Repo, req.PRNumber)
	}
	if req.Author != "casey" {
		t.Errorf("Author = %q, want casey", req.Author)
	}
	if req.HeadRef != "abc123" || req.BaseRef != "main" {
		t.Errorf("refs = %q/%q, want abc123/main", req.HeadRef, req.BaseRef)
	}

	if len(req.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(req.Files))
	}
	if req.Files[0].Content != "package auth\n" {
		t.Errorf("file content not attached: %q", req.Files[0].Content)
	}

	if req.Options.Depth != config.DepthThorough {
		t.Errorf("Depth = %q, want thorough", req.Options.Depth)
	}
	want := "Focus on concurrency.\n\nFlag missing audit logs."
	if req.Options.Instructions != want {
		t.Errorf("Instructions = %q, want %q", req.Options.Instructions, want)
	}
	if req.ProviderKey != "sk-ant-test" {
		t.Error("ProviderKey not forwarded")
	}
}

func TestBuildReviewRequestRepoInstructionsOnly(t *testing.T) {
	input := &RunInput{Owner: "acme", Repo: "widgets", PRNumber: 1}
	pr := &github.PullRequest{Base: &github.Ref{Ref: "main"}}
	opts := &config.Options{Enabled: true, Instructions: "Repo guidance."}

	req := buildReviewRequest(input, pr, nil, nil, opts, &config.Settings{Depth: config.DepthAuto})

	if req.Options.Instructions != "Repo guidance." {
		t.Errorf("Instructions = %q, want repo guidance alone", req.Options.Instructions)
	}
	if req.Author != "" {
		t.Errorf("Author = %q, want empty for missing user", req.Author)
	}
	if req.HeadRef != "" {
		t.Errorf("HeadRef = %q, want empty for missing head", req.HeadRef)
	}
}

func TestBuildReviewRequestBarePullRequest(t *testing.T) {
	input := &RunInput{Owner: "acme", Repo: "widgets", PRNumber: 1}

	// Fork payloads can omit user, head, and base entirely.
	req := buildReviewRequest(input, &github.PullRequest{}, nil, nil, config.DefaultOptions(), &config.Settings{})

	if req.Author != "" || req.BaseRef != "" || req.HeadRef != "" {
		t.Errorf("author/base/head = %q/%q/%q, want all empty", req.Author, req.BaseRef, req.HeadRef)
	}
}

func TestRunEndsEarlyWithoutReviewableFiles(t *testing.T) {
	platform := newFakePlatform()
	platform.pr = &github.PullRequest{
		Number: 42,
		Head:   &github.Ref{SHA: "abc123"},
		Base:   &github.Ref{Ref: "main"},
	}
	platform.files = []github.PullRequestFile{
		{Filename: "logo.png", Status: "modified", Patch: "@@ -0,0 +1 @@\n+binary\n"},
		{Filename: "generated.pb.go", Status: "modified"},
	}

	settings := &config.Settings{Depth: config.DepthAuto, MaxFiles: 50}
	runner := NewRunner(platform, nil, settings, nil, discardLogger())

	result, err := runner.Run(context.Background(), &RunInput{Owner: "acme", Repo: "widgets", PRNumber: 42})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.TotalFindings != 0 || result.HighFindings != 0 {
		t.Errorf("findings = %d/%d, want 0/0", result.TotalFindings, result.HighFindings)
	}
	if result.Skipped {
		t.Error("Skipped = true, want false for an empty diff")
	}

	// Nothing reviewable means nothing posted.
	if len(platform.createdReviews) != 0 {
		t.Errorf("created reviews = %d, want 0", len(platform.createdReviews))
	}
	if len(platform.comments) != 0 {
		t.Errorf("comments posted = %d, want 0", len(platform.comments))
	}
}
