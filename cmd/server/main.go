// Package main provides a standalone webhook server for self-hosted
// reviewloop deployments.
//
// Configuration via environment variables:
//
//	GITHUB_APP_ID         - GitHub App ID (required)
//	GITHUB_WEBHOOK_SECRET - Webhook signature verification secret (required)
//	GITHUB_PRIVATE_KEY    - GitHub App private key in PEM format (required)
//	REVIEWLOOP_API_KEY    - Reviewloop API key (required)
//	DATABASE_URL          - PostgreSQL usage store (optional)
//	PORT                  - HTTP server port (default: 8080)
//
// Review settings (REVIEW_DEPTH, SEVERITY_THRESHOLD, and the rest) are
// read the same way the CI entrypoint reads them.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/reviewloop/reviewloop/config"
	"github.com/reviewloop/reviewloop/engine"
	"github.com/reviewloop/reviewloop/github"
	"github.com/reviewloop/reviewloop/review"
	"github.com/reviewloop/reviewloop/storage"
	"github.com/reviewloop/reviewloop/storage/postgres"
)

var (
	logger         *slog.Logger
	webhookHandler *github.WebhookHandler
	settings       *config.Settings
	engineClient   *engine.Client
	store          storage.Storage
	pgStore        *postgres.PostgreSQL
	appID          int64
	privateKey     []byte
)

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := initialize(); err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	if pgStore != nil {
		defer pgStore.Close()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", handleWebhook)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/", handleRoot)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // reviews run long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initialize() error {
	webhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	pem := os.Getenv("GITHUB_PRIVATE_KEY")
	if pem == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required")
	}
	privateKey = []byte(pem)

	appIDStr := os.Getenv("GITHUB_APP_ID")
	if appIDStr == "" {
		return fmt.Errorf("GITHUB_APP_ID is required")
	}
	id, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}
	appID = id

	settings, err = config.ReviewFromEnv()
	if err != nil {
		return err
	}

	if settings.DatabaseURL != "" {
		db, err := sql.Open("postgres", settings.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		pgStore = postgres.New(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		store = pgStore
	}

	webhookHandler = github.NewWebhookHandler(webhookSecret)
	engineClient = engine.NewClient(settings.APIBaseURL, settings.APIKey)

	logger.Info("initialized", "app_id", appID, "usage_store", store != nil)
	return nil
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"name":    "reviewloop",
		"status":  "running",
		"version": "self-hosted",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	logger.Info("received webhook", "event", eventType, "size", len(payload))

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := webhookHandler.VerifySignature(payload, signature); err != nil {
		logger.Error("signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if eventType == "ping" {
		jsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	if eventType != "pull_request" {
		logger.Info("ignoring event", "type", eventType)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	event, err := webhookHandler.ParsePullRequestEvent(payload)
	if err != nil {
		logger.Error("failed to parse event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if !webhookHandler.ShouldProcess(eventType, event) {
		logger.Info("skipping event", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event skipped"})
		return
	}

	if event.Installation == nil {
		logger.Error("webhook payload missing installation",
			"repo", event.Repository.FullName,
			"pr", event.Number,
		)
		http.Error(w, "missing installation", http.StatusBadRequest)
		return
	}

	logger.Info("processing PR",
		"repo", event.Repository.FullName,
		"pr", event.Number,
		"action", event.Action,
	)

	// Respond before the review runs; GitHub's delivery timeout is short.
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review started"})

	installationID := event.Installation.ID
	input := &review.RunInput{
		Owner:    event.Repository.Owner.Login,
		Repo:     event.Repository.Name,
		PRNumber: event.Number,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		githubClient, err := github.NewAppClient(appID, installationID, privateKey)
		if err != nil {
			logger.Error("failed to create installation client", "error", err)
			return
		}

		runner := review.NewRunner(githubClient, engineClient, settings, store, logger)

		result, err := runner.Run(ctx, input)
		if err != nil {
			logger.Error("review failed", "error", err)
			return
		}

		if result.Skipped {
			logger.Info("review skipped (not enabled)")
			return
		}

		logger.Info("review posted",
			"review_id", result.ReviewID,
			"findings", result.TotalFindings,
			"high", result.HighFindings,
			"summary_comment", result.SummaryID,
		)
	}()
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
