package storage

// TokenUsage records review service token consumption for one run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// RunRecord is one completed review run.
type RunRecord struct {
	Owner         string      `json:"owner"`
	Repo          string      `json:"repo"`
	PRNumber      int         `json:"pr_number"`
	ReviewID      string      `json:"review_id"`
	EstimatedCost float64     `json:"estimated_cost"`
	TotalFindings int         `json:"total_findings"`
	HighFindings  int         `json:"high_findings"`
	Usage         *TokenUsage `json:"usage,omitempty"`
	CreatedAt     string      `json:"created_at"`
}
