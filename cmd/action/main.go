// Package main is the CI entrypoint. It reviews the pull request named
// by the environment and posts the results back to it.
//
// Configuration via environment variables:
//
//	REVIEWLOOP_API_KEY     - Reviewloop API key (required)
//	GITHUB_TOKEN           - GitHub token (or GITHUB_APP_ID + GITHUB_INSTALLATION_ID + GITHUB_PRIVATE_KEY_PATH)
//	GITHUB_REPOSITORY      - "owner/repo" of the pull request (required)
//	PR_NUMBER              - pull request number (required)
//	REVIEW_DEPTH           - quick, auto, or thorough (default: auto)
//	SEVERITY_THRESHOLD     - high, medium, or low (default: low)
//	CUSTOM_INSTRUCTIONS    - extra guidance passed to the review service
//	MAX_FILES              - cap on reviewed files (default: 50)
//	REVIEWLOOP_API_URL     - review service base URL (default: hosted)
//	ANTHROPIC_API_KEY      - bring-your-own provider key (optional)
//	DATABASE_URL           - PostgreSQL usage store (optional)
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/reviewloop/reviewloop/anthropic"
	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/engine"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/review"
	"github.com/reviewloop/reviewloop/storage"
	"github.com/reviewloop/reviewloop/storage/postgres"
)

const runTimeout = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(logger); err != nil {
		logger.Error("review run failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("unexpected panic: %w", rerr)
			} else {
				err = fmt.Errorf("unexpected panic: %v", r)
			}
		}
	}()

	settings, err := config.FromEnv()
	if err != nil {
		return err
	}

	owner, repo, prNumber, err := targetFromEnv()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if settings.ProviderKey != "" {
		// The review service does its own auth; failing the check here
		// just gives the user an early, clearer signal.
		if err := anthropic.ValidateAPIKey(ctx, settings.ProviderKey); err != nil {
			logger.Warn("provider key validation failed", "error", err)
		}
	}

	githubClient, err := newGitHubClient(settings)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := review.NewRunner(
		githubClient,
		engine.NewClient(settings.APIBaseURL, settings.APIKey),
		settings,
		store,
		logger,
	)

	result, err := runner.Run(ctx, &review.RunInput{
		Owner:    owner,
		Repo:     repo,
		PRNumber: prNumber,
	})
	if err != nil {
		return err
	}

	if result.Skipped {
		logger.Info("review skipped")
	} else {
		logger.Info("review complete",
			"review_id", result.ReviewID,
			"findings", result.TotalFindings,
			"high", result.HighFindings,
			"cost", result.Cost,
		)
	}

	return writeOutputs(result)
}

// targetFromEnv resolves the pull request to review from the standard CI
// environment.
func targetFromEnv() (owner, repo string, prNumber int, err error) {
	repository := os.Getenv("GITHUB_REPOSITORY")
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, fmt.Errorf("invalid GITHUB_REPOSITORY: %q (expected owner/repo)", repository)
	}

	prStr := os.Getenv("PR_NUMBER")
	if prStr == "" {
		return "", "", 0, fmt.Errorf("PR_NUMBER is required")
	}
	n, err := strconv.Atoi(prStr)
	if err != nil || n < 1 {
		return "", "", 0, fmt.Errorf("invalid PR_NUMBER: %q", prStr)
	}

	return parts[0], parts[1], n, nil
}

func newGitHubClient(settings *config.Settings) (*github.Client, error) {
	if settings.AppID != 0 {
		privateKey, err := os.ReadFile(settings.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", settings.PrivateKeyPath, err)
		}
		return github.NewAppClient(settings.AppID, settings.InstallationID, privateKey)
	}
	return github.NewTokenClient(settings.GitHubToken), nil
}

// openStore connects the optional usage store. A missing DATABASE_URL is
// not an error; the cost ledger in the summary comment stands alone.
func openStore(ctx context.Context, settings *config.Settings, logger *slog.Logger) (storage.Storage, func(), error) {
	if settings.DatabaseURL == "" {
		return nil, func() {}, nil
	}

	db, err := sql.Open("postgres", settings.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pg := postgres.New(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("usage store connected")
	return pg, func() { pg.Close() }, nil
}

// writeOutputs publishes the run's counts to the workflow. Outside a
// workflow they go to stdout.
func writeOutputs(result *review.RunResult) error {
	lines := fmt.Sprintf("total_findings=%d\nhigh_severity_findings=%d\n",
		result.TotalFindings, result.HighFindings)

	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		fmt.Print(lines)
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(lines); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	return nil
}
