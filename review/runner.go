package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/engine"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/storage"
)

// binaryExtensions lists file extensions that are never sent for review.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".mov": true, ".webm": true, ".webp": true,
}

// PlatformClient is the subset of the GitHub client the runner needs.
// *github.Client satisfies it; tests substitute a fake.
type PlatformClient interface {
	PlatformAPI
	GetPullRequest(ctx context.Context, owner, repo string, prNumber int) (*github.PullRequest, error)
	FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	FetchMultipleFiles(ctx context.Context, owner, repo string, paths []string, ref string) map[string]string
}

// Runner orchestrates one review run: fetch the pull request, call the
// review service, and reconcile the findings onto the pull request.
type Runner struct {
	platform     PlatformClient
	engineClient *engine.Client
	optsLoader   *config.Loader
	reconciler   *Reconciler
	settings     *config.Settings
	store        storage.Storage
	logger       *slog.Logger
}

// NewRunner creates a Runner. store may be nil when usage records are not
// kept.
func NewRunner(platform PlatformClient, engineClient *engine.Client, settings *config.Settings, store storage.Storage, logger *slog.Logger) *Runner {
	return &Runner{
		platform:     platform,
		engineClient: engineClient,
		optsLoader:   config.NewLoader(platform),
		reconciler:   NewReconciler(platform, logger),
		settings:     settings,
		store:        store,
		logger:       logger,
	}
}

// RunInput identifies the pull request to review.
type RunInput struct {
	Owner    string
	Repo     string
	PRNumber int
}

// RunResult is the run's outcome, exposed as process outputs by the CI
// entrypoint.
type RunResult struct {
	TotalFindings int
	HighFindings  int
	ReviewID      string
	SummaryID     int64
	Cost          float64
	Skipped       bool
}

// Run reviews one pull request end to end.
func (r *Runner) Run(ctx context.Context, input *RunInput) (*RunResult, error) {
	r.logger.Info("starting review run",
		"owner", input.Owner,
		"repo", input.Repo,
		"pr", input.PRNumber,
	)

	pr, err := r.platform.GetPullRequest(ctx, input.Owner, input.Repo, input.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request: %w", err)
	}

	opts, err := r.loadOptions(ctx, input, pr)
	if err != nil {
		return nil, err
	}
	if !opts.Enabled {
		r.logger.Info("reviews disabled for repository")
		return &RunResult{Skipped: true}, nil
	}

	files, err := r.collectFiles(ctx, input, opts)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		r.logger.Info("no reviewable files, ending run early")
		return &RunResult{}, nil
	}

	// Full file contents give the review service context beyond the
	// diff. Fetch failures only reduce context for the affected file.
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Filename
	}
	// Forks sometimes deliver payloads without head or base refs; treat
	// them as empty rather than crashing mid-run.
	headSHA := ""
	if pr.Head != nil {
		headSHA = pr.Head.SHA
	}
	contents := r.platform.FetchMultipleFiles(ctx, input.Owner, input.Repo, paths, headSHA)

	resp, err := r.engineClient.Review(ctx, buildReviewRequest(input, pr, files, contents, opts, r.settings))
	if err != nil {
		return nil, err
	}

	r.logger.Info("review service responded",
		"review_id", resp.ReviewID,
		"findings", len(resp.Findings),
		"cost", resp.Metrics.EstimatedCost,
	)

	reconciled, err := r.reconciler.Reconcile(ctx, &ReconcileInput{
		Owner:     input.Owner,
		Repo:      input.Repo,
		PRNumber:  input.PRNumber,
		HeadSHA:   headSHA,
		ReviewID:  resp.ReviewID,
		Cost:      resp.Metrics.EstimatedCost,
		Findings:  resp.Findings,
		Metrics:   resp.Metrics,
		Summary:   resp.Summary,
		Threshold: r.settings.Threshold,
	})
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		TotalFindings: len(reconciled.Filtered),
		HighFindings:  CountBySeverity(reconciled.Filtered, engine.SeverityHigh),
		ReviewID:      resp.ReviewID,
		SummaryID:     reconciled.SummaryID,
		Cost:          resp.Metrics.EstimatedCost,
	}

	r.storeRun(ctx, input, resp, result)

	return result, nil
}

// loadOptions loads the repository options file. A malformed file is a
// user error and fails the run; a fetch failure falls back to defaults.
func (r *Runner) loadOptions(ctx context.Context, input *RunInput, pr *github.PullRequest) (*config.Options, error) {
	baseRef := ""
	if pr.Base != nil {
		baseRef = pr.Base.Ref
	}
	opts, err := r.optsLoader.Load(ctx, input.Owner, input.Repo, baseRef)
	if err != nil {
		var parseErr *config.OptionsParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("invalid options file %s: %w", parseErr.Path, parseErr.Err)
		}
		r.logger.Warn("failed to load repository options, using defaults", "error", err)
		return config.DefaultOptions(), nil
	}
	return opts, nil
}

// collectFiles lists the pull request's changed files and applies the
// reviewable-file policy: drop binaries and excluded paths, drop files
// the platform could not diff, and truncate to the configured maximum by
// removing the files with the smallest change counts.
func (r *Runner) collectFiles(ctx context.Context, input *RunInput, opts *config.Options) ([]github.PullRequestFile, error) {
	var files []github.PullRequestFile
	for page := 1; ; page++ {
		pageFiles, err := r.platform.ListFiles(ctx, input.Owner, input.Repo, input.PRNumber, page, commentsPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list changed files: %w", err)
		}
		files = append(files, pageFiles...)
		if len(pageFiles) < commentsPageSize {
			break
		}
	}

	reviewable := make([]github.PullRequestFile, 0, len(files))
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(f.Filename))] {
			continue
		}
		if opts.ShouldExcludeFile(f.Filename) {
			continue
		}
		reviewable = append(reviewable, f)
	}

	if len(reviewable) > r.settings.MaxFiles {
		// Keep the files with the most changes; the long tail of tiny
		// changes contributes the least review signal.
		sort.SliceStable(reviewable, func(i, j int) bool {
			return reviewable[i].Additions+reviewable[i].Deletions > reviewable[j].Additions+reviewable[j].Deletions
		})
		r.logger.Info("truncating file list",
			"total", len(reviewable),
			"max_files", r.settings.MaxFiles,
		)
		reviewable = reviewable[:r.settings.MaxFiles]
	}

	return reviewable, nil
}

// buildReviewRequest assembles the review service payload.
func buildReviewRequest(input *RunInput, pr *github.PullRequest, files []github.PullRequestFile, contents map[string]string, opts *config.Options, settings *config.Settings) *engine.ReviewRequest {
	inputs := make([]engine.FileInput, len(files))
	for i, f := range files {
		inputs[i] = engine.FileInput{
			Filename:  f.Filename,
			Status:    f.Status,
			Patch:     f.Patch,
			Content:   contents[f.Filename],
			Additions: f.Additions,
			Deletions: f.Deletions,
		}
	}

	instructions := settings.Instructions
	if opts.Instructions != "" {
		if instructions != "" {
			instructions += "\n\n"
		}
		instructions += opts.Instructions
	}

	author := ""
	if pr.User != nil {
		author = pr.User.Login
	}
	baseRef := ""
	if pr.Base != nil {
		baseRef = pr.Base.Ref
	}
	headRef := ""
	if pr.Head != nil {
		headRef = pr.Head.SHA
	}

	return &engine.ReviewRequest{
		Owner:       input.Owner,
		Repo:        input.Repo,
		PRNumber:    input.PRNumber,
		Title:       pr.Title,
		Description: pr.Body,
		Author:      author,
		BaseRef:     baseRef,
		HeadRef:     headRef,
		Files:       inputs,
		Options: engine.Options{
			Depth:        settings.Depth,
			Instructions: instructions,
		},
		ProviderKey: settings.ProviderKey,
	}
}

// storeRun records the run in the usage store. Storage failures never
// fail the run.
func (r *Runner) storeRun(ctx context.Context, input *RunInput, resp *engine.ReviewResponse, result *RunResult) {
	if r.store == nil {
		return
	}

	record := &storage.RunRecord{
		Owner:         input.Owner,
		Repo:          input.Repo,
		PRNumber:      input.PRNumber,
		ReviewID:      resp.ReviewID,
		EstimatedCost: resp.Metrics.EstimatedCost,
		TotalFindings: result.TotalFindings,
		HighFindings:  result.HighFindings,
		Usage: &storage.TokenUsage{
			InputTokens:  resp.Metrics.Usage.InputTokens,
			OutputTokens: resp.Metrics.Usage.OutputTokens,
		},
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := r.store.StoreRun(ctx, record); err != nil {
		r.logger.Error("failed to store run record", "error", err)
	}
}
