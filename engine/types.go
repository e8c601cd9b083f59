// Package engine provides the client for the reviewloop review service.
package engine

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// severityRanks orders severities for threshold comparisons.
var severityRanks = map[Severity]int{
	SeverityHigh:   3,
	SeverityMedium: 2,
	SeverityLow:    1,
}

// Rank returns the numeric rank of a severity (high=3, medium=2, low=1).
// Unknown severities rank 0 and never pass any threshold.
func (s Severity) Rank() int {
	return severityRanks[s]
}

// Valid reports whether the severity is one of the known values.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Finding is a single observation produced by the review service.
// Line is 1-based and refers to the new version of the file.
type Finding struct {
	Path       string   `json:"path"`
	Line       int      `json:"line"`
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Pass       string   `json:"pass,omitempty"`
	Model      string   `json:"model,omitempty"`
}

// TokenUsage counts tokens consumed by the review service for one run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Metrics describes one review run as reported by the review service.
type Metrics struct {
	FilesReviewed int        `json:"files_reviewed"`
	FilesSkipped  int        `json:"files_skipped"`
	TotalFindings int        `json:"total_findings"`
	HighCount     int        `json:"high_count"`
	MediumCount   int        `json:"medium_count"`
	LowCount      int        `json:"low_count"`
	Passes        []string   `json:"passes"`
	Models        []string   `json:"models"`
	EstimatedCost float64    `json:"estimated_cost"`
	Usage         TokenUsage `json:"usage"`
}

// FileInput is one changed file sent to the review service.
type FileInput struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Patch     string `json:"patch,omitempty"`
	Content   string `json:"content,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Options configures how the review service reviews a pull request.
type Options struct {
	Depth        string `json:"depth"`
	Instructions string `json:"instructions,omitempty"`
}

// ReviewRequest is the payload sent to the review service.
type ReviewRequest struct {
	Owner       string      `json:"owner"`
	Repo        string      `json:"repo"`
	PRNumber    int         `json:"pr_number"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Author      string      `json:"author,omitempty"`
	BaseRef     string      `json:"base_ref"`
	HeadRef     string      `json:"head_ref"`
	Files       []FileInput `json:"files"`
	Options     Options     `json:"options"`
	ProviderKey string      `json:"provider_key,omitempty"`
}

// ReviewResponse is the payload returned by the review service.
type ReviewResponse struct {
	ReviewID string    `json:"review_id"`
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
	Metrics  Metrics   `json:"metrics"`
}
