package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reviewloop/reviewloop/engine"
	"github.com/reviewloop/reviewloop/github"
)

const (
	// commentsPageSize is the page size for paginated listing calls.
	commentsPageSize = 100

	// dismissMessage is posted when a prior automated review is dismissed.
	dismissMessage = "Superseded by a newer reviewloop review."
)

// PlatformAPI is the subset of the GitHub client the reconciler needs.
// *github.Client satisfies it; tests substitute a fake.
type PlatformAPI interface {
	ListIssueComments(ctx context.Context, owner, repo string, prNumber, page, perPage int) ([]github.IssueComment, error)
	DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error
	CreateIssueComment(ctx context.Context, owner, repo string, prNumber int, body string) (*github.IssueComment, error)
	ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]github.Review, error)
	DismissReview(ctx context.Context, owner, repo string, prNumber int, reviewID int64, message string) error
	CreateReview(ctx context.Context, owner, repo string, prNumber int, review *github.ReviewRequest) (*github.Review, error)
	ListFiles(ctx context.Context, owner, repo string, prNumber, page, perPage int) ([]github.PullRequestFile, error)
}

// Reconciler replaces the previous run's comments with the current run's
// findings, keeping at most one live automated summary per pull request.
type Reconciler struct {
	platform PlatformAPI
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler against the given platform client.
func NewReconciler(platform PlatformAPI, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		platform: platform,
		logger:   logger,
		now:      time.Now,
	}
}

// ReconcileInput carries everything one run publishes.
type ReconcileInput struct {
	Owner    string
	Repo     string
	PRNumber int
	HeadSHA  string

	// ReviewID and Cost identify this run in the cost ledger.
	ReviewID string
	Cost     float64

	Findings  []engine.Finding
	Metrics   engine.Metrics
	Summary   string
	Threshold engine.Severity
}

// ReconcileResult reports what was published.
type ReconcileResult struct {
	Filtered      []engine.Finding
	InlinePosted  int
	DeferredCount int
	Ledger        CostLedger
	SummaryID     int64
}

// Reconcile runs the publish state machine for one pull request run:
// purge prior comments and reviews, extend the cost ledger, anchor the
// filtered findings to the diff, post inline comments best-effort, and
// post exactly one new summary comment. Only the final summary post can
// fail the run; everything before it degrades gracefully.
func (r *Reconciler) Reconcile(ctx context.Context, input *ReconcileInput) (*ReconcileResult, error) {
	prior, found := r.purgeComments(ctx, input)
	if found {
		r.logger.Info("purged prior summary",
			"owner", input.Owner,
			"repo", input.Repo,
			"pr", input.PRNumber,
			"prior_reviews", len(prior.Reviews),
		)
	}

	r.dismissPriorReviews(ctx, input)

	ledger := prior.Append(CostEntry{
		ID:        input.ReviewID,
		Cost:      input.Cost,
		Timestamp: r.now(),
	})

	filtered := FilterBySeverity(input.Findings, input.Threshold)

	positions := r.fetchPositions(ctx, input)

	inline, deferred := partitionFindings(filtered, positions)

	inlinePosted := 0
	if len(inline) > 0 {
		if err := r.postInline(ctx, input, inline); err != nil {
			// Inline posting is best-effort: no finding is lost, the
			// whole batch falls back to the summary.
			r.logger.Warn("inline review failed, deferring findings to summary",
				"error", err,
				"count", len(inline),
			)
			for _, c := range inline {
				deferred = append(deferred, c.finding)
			}
		} else {
			inlinePosted = len(inline)
		}
	}

	summaryID, err := r.postSummary(ctx, input, filtered, deferred, ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to post summary comment: %w", err)
	}

	return &ReconcileResult{
		Filtered:      filtered,
		InlinePosted:  inlinePosted,
		DeferredCount: len(deferred),
		Ledger:        ledger,
		SummaryID:     summaryID,
	}, nil
}

// purgeComments pages through the pull request's comments, extracts the
// cost ledger from the last automated summary found, and deletes every
// automated comment. Failures here never abort the run: worst case the
// cumulative cost resets and a stale comment survives one more run.
func (r *Reconciler) purgeComments(ctx context.Context, input *ReconcileInput) (CostLedger, bool) {
	var prior CostLedger
	found := false

	for page := 1; ; page++ {
		comments, err := withRetry(ctx, r.logger, "list comments", func() ([]github.IssueComment, error) {
			return r.platform.ListIssueComments(ctx, input.Owner, input.Repo, input.PRNumber, page, commentsPageSize)
		})
		if err != nil {
			r.logger.Warn("failed to list comments", "page", page, "error", err)
			break
		}

		for _, c := range comments {
			if !strings.Contains(c.Body, SignatureMarker) {
				continue
			}

			// Last ledger wins if more than one summary survived a
			// previous partial failure.
			if ledger, ok := ParseLedger(c.Body); ok {
				prior = ledger
			}
			found = true

			commentID := c.ID
			_, err := withRetry(ctx, r.logger, "delete comment", func() (struct{}, error) {
				return struct{}{}, r.platform.DeleteIssueComment(ctx, input.Owner, input.Repo, commentID)
			})
			if err != nil {
				r.logger.Warn("failed to delete prior comment", "comment_id", commentID, "error", err)
			}
		}

		if len(comments) < commentsPageSize {
			break
		}
	}

	return prior, found
}

// dismissPriorReviews dismisses automated reviews from earlier runs.
// Reviews cannot be deleted; a dismissal failure is logged and swallowed.
func (r *Reconciler) dismissPriorReviews(ctx context.Context, input *ReconcileInput) {
	reviews, err := withRetry(ctx, r.logger, "list reviews", func() ([]github.Review, error) {
		return r.platform.ListReviews(ctx, input.Owner, input.Repo, input.PRNumber)
	})
	if err != nil {
		r.logger.Warn("failed to list reviews", "error", err)
		return
	}

	for _, review := range reviews {
		if !strings.Contains(review.Body, SignatureMarker) {
			continue
		}

		reviewID := review.ID
		_, err := withRetry(ctx, r.logger, "dismiss review", func() (struct{}, error) {
			return struct{}{}, r.platform.DismissReview(ctx, input.Owner, input.Repo, input.PRNumber, reviewID, dismissMessage)
		})
		if err != nil {
			r.logger.Warn("failed to dismiss prior review", "review_id", reviewID, "error", err)
		}
	}
}

// fetchPositions fetches the pull request's current patches and builds a
// position map per file. The fetch is fresh even though the caller already
// listed files: positions must be computed against the patches as they are
// now. On failure every finding is deferred to the summary.
func (r *Reconciler) fetchPositions(ctx context.Context, input *ReconcileInput) map[string]PositionMap {
	positions := make(map[string]PositionMap)

	for page := 1; ; page++ {
		files, err := withRetry(ctx, r.logger, "list files", func() ([]github.PullRequestFile, error) {
			return r.platform.ListFiles(ctx, input.Owner, input.Repo, input.PRNumber, page, commentsPageSize)
		})
		if err != nil {
			r.logger.Warn("failed to list files for position mapping", "page", page, "error", err)
			break
		}

		for _, f := range files {
			if f.Patch == "" {
				continue
			}
			positions[f.Filename] = BuildPositionMap(f.Patch)
		}

		if len(files) < commentsPageSize {
			break
		}
	}

	return positions
}

// inlineCandidate pairs a finding with its resolved diff position.
type inlineCandidate struct {
	finding  engine.Finding
	position int
}

// partitionFindings splits findings into inline candidates (anchored to a
// diff position) and deferred findings that only appear in the summary.
func partitionFindings(findings []engine.Finding, positions map[string]PositionMap) ([]inlineCandidate, []engine.Finding) {
	var inline []inlineCandidate
	var deferred []engine.Finding

	for _, f := range findings {
		fileMap, ok := positions[f.Path]
		if !ok {
			deferred = append(deferred, f)
			continue
		}
		position, ok := fileMap[f.Line]
		if !ok {
			deferred = append(deferred, f)
			continue
		}
		inline = append(inline, inlineCandidate{finding: f, position: position})
	}

	return inline, deferred
}

// postInline publishes all inline candidates as one comment-only review.
func (r *Reconciler) postInline(ctx context.Context, input *ReconcileInput, inline []inlineCandidate) error {
	comments := make([]github.ReviewComment, len(inline))
	for i, c := range inline {
		comments[i] = github.ReviewComment{
			Path:     c.finding.Path,
			Position: c.position,
			Body:     FormatFinding(c.finding),
		}
	}

	reviewReq := &github.ReviewRequest{
		CommitID: input.HeadSHA,
		Body:     SignatureMarker,
		Event:    "COMMENT",
		Comments: comments,
	}

	review, err := withRetry(ctx, r.logger, "create review", func() (*github.Review, error) {
		return r.platform.CreateReview(ctx, input.Owner, input.Repo, input.PRNumber, reviewReq)
	})
	if err != nil {
		return err
	}

	r.logger.Info("posted inline review", "review_id", review.ID, "comments", len(comments))
	return nil
}

// postSummary publishes the run's single summary comment.
func (r *Reconciler) postSummary(ctx context.Context, input *ReconcileInput, filtered, deferred []engine.Finding, ledger CostLedger) (int64, error) {
	body := FormatSummary(input.Metrics, input.Summary, len(filtered), len(input.Findings), ledger)
	if len(deferred) > 0 {
		body = InsertBeforeSignature(body, FormatDeferredSection(deferred))
	}

	comment, err := withRetry(ctx, r.logger, "create summary comment", func() (*github.IssueComment, error) {
		return r.platform.CreateIssueComment(ctx, input.Owner, input.Repo, input.PRNumber, body)
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("posted summary comment",
		"comment_id", comment.ID,
		"deferred", len(deferred),
		"total_cost", ledger.TotalCost,
	)
	return comment.ID, nil
}
