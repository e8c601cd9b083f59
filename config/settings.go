// Package config handles run settings and repository options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/reviewloop/reviewloop/engine"
)

const (
	// DepthQuick reviews only the diff with a single pass.
	DepthQuick = "quick"
	// DepthAuto lets the review service choose its passes.
	DepthAuto = "auto"
	// DepthThorough runs every review pass.
	DepthThorough = "thorough"

	// DefaultAPIURL is the hosted review service endpoint.
	DefaultAPIURL = "https://api.reviewloop.dev"

	// DefaultMaxFiles caps how many changed files are sent for review.
	DefaultMaxFiles = 50
)

// Settings is the validated run configuration, loaded from the
// environment before any network call is made.
type Settings struct {
	Depth        string
	Threshold    engine.Severity
	Instructions string
	MaxFiles     int
	APIBaseURL   string

	// Credentials.
	APIKey         string
	ProviderKey    string
	GitHubToken    string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string

	// Optional usage-record store.
	DatabaseURL string
}

// ReviewFromEnv loads and validates the review settings shared by every
// deployment mode. Platform credentials are left for the caller.
func ReviewFromEnv() (*Settings, error) {
	s := &Settings{
		Depth:        envOrDefault("REVIEW_DEPTH", DepthAuto),
		Instructions: os.Getenv("CUSTOM_INSTRUCTIONS"),
		APIBaseURL:   strings.TrimSuffix(envOrDefault("REVIEWLOOP_API_URL", DefaultAPIURL), "/"),
		APIKey:       os.Getenv("REVIEWLOOP_API_KEY"),
		ProviderKey:  os.Getenv("ANTHROPIC_API_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	switch s.Depth {
	case DepthQuick, DepthAuto, DepthThorough:
	default:
		return nil, fmt.Errorf("invalid REVIEW_DEPTH: %q (must be quick, auto, or thorough)", s.Depth)
	}

	threshold := engine.Severity(envOrDefault("SEVERITY_THRESHOLD", string(engine.SeverityLow)))
	if !threshold.Valid() {
		return nil, fmt.Errorf("invalid SEVERITY_THRESHOLD: %q (must be high, medium, or low)", threshold)
	}
	s.Threshold = threshold

	maxFiles := envOrDefault("MAX_FILES", strconv.Itoa(DefaultMaxFiles))
	n, err := strconv.Atoi(maxFiles)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FILES: %q (must be a positive integer)", maxFiles)
	}
	if n < 1 {
		return nil, fmt.Errorf("invalid MAX_FILES: %d (must be a positive integer)", n)
	}
	s.MaxFiles = n

	if s.APIKey == "" {
		return nil, fmt.Errorf("REVIEWLOOP_API_KEY is required")
	}

	return s, nil
}

// FromEnv loads the full CI configuration: review settings plus the
// platform credentials the entrypoint needs.
func FromEnv() (*Settings, error) {
	s, err := ReviewFromEnv()
	if err != nil {
		return nil, err
	}
	s.GitHubToken = os.Getenv("GITHUB_TOKEN")

	if appID := os.Getenv("GITHUB_APP_ID"); appID != "" {
		id, err := strconv.ParseInt(appID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		s.AppID = id
		s.PrivateKeyPath = os.Getenv("GITHUB_PRIVATE_KEY_PATH")
		if s.PrivateKeyPath == "" {
			return nil, fmt.Errorf("GITHUB_PRIVATE_KEY_PATH is required with GITHUB_APP_ID")
		}
		installID := os.Getenv("GITHUB_INSTALLATION_ID")
		if installID == "" {
			return nil, fmt.Errorf("GITHUB_INSTALLATION_ID is required with GITHUB_APP_ID")
		}
		iid, err := strconv.ParseInt(installID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_INSTALLATION_ID: %w", err)
		}
		s.InstallationID = iid
	} else if s.GitHubToken == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN or GITHUB_APP_ID is required")
	}

	return s, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
