// Package github provides the GitHub API client and webhook handling for
// reviewloop.
package github

import "time"

// WebhookEvent represents a pull_request webhook event.
type WebhookEvent struct {
	Action       string        `json:"action"`
	Number       int           `json:"number"`
	PullRequest  *PullRequest  `json:"pull_request,omitempty"`
	Repository   *Repository   `json:"repository"`
	Installation *Installation `json:"installation,omitempty"`
	Sender       *User         `json:"sender"`
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	State   string `json:"state"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Head    *Ref   `json:"head"`
	Base    *Ref   `json:"base"`
	User    *User  `json:"user"`
	HTMLURL string `json:"html_url"`
}

// Ref represents a git reference (branch/commit).
type Ref struct {
	Ref  string      `json:"ref"`
	SHA  string      `json:"sha"`
	Repo *Repository `json:"repo,omitempty"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         *User  `json:"owner"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// User represents a GitHub user or organization.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

// Installation represents a GitHub App installation.
type Installation struct {
	ID int64 `json:"id"`
}

// PullRequestFile represents a file changed in a pull request.
type PullRequestFile struct {
	SHA              string `json:"sha"`
	Filename         string `json:"filename"`
	Status           string `json:"status"` // added, removed, modified, renamed, copied, changed, unchanged
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Changes          int    `json:"changes"`
	Patch            string `json:"patch,omitempty"`
	PreviousFilename string `json:"previous_filename,omitempty"`
}

// ReviewComment represents an inline comment anchored to a diff position.
type ReviewComment struct {
	Path     string `json:"path"`
	Position int    `json:"position"`
	Body     string `json:"body"`
}

// ReviewRequest represents a request to create a pull request review.
type ReviewRequest struct {
	CommitID string          `json:"commit_id,omitempty"`
	Body     string          `json:"body"`
	Event    string          `json:"event"` // APPROVE, REQUEST_CHANGES, COMMENT
	Comments []ReviewComment `json:"comments,omitempty"`
}

// Review represents a pull request review response.
type Review struct {
	ID          int64     `json:"id"`
	NodeID      string    `json:"node_id"`
	User        *User     `json:"user"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	HTMLURL     string    `json:"html_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// IssueComment represents a standalone comment on a pull request.
type IssueComment struct {
	ID        int64  `json:"id"`
	NodeID    string `json:"node_id"`
	User      *User  `json:"user"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	HTMLURL   string `json:"html_url"`
}

// CommentRequest represents a request to create a comment.
type CommentRequest struct {
	Body string `json:"body"`
}

// FileContent represents the content of a file from the GitHub API.
type FileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}
