package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OptionsPath is the per-repository options file.
const OptionsPath = ".github/reviewloop.yml"

// OptionsParseError indicates an options file exists but contains invalid
// content. This is distinct from "file not found", which uses defaults.
type OptionsParseError struct {
	Path string
	Err  error
}

func (e *OptionsParseError) Error() string {
	return fmt.Sprintf("invalid options at %s: %v", e.Path, e.Err)
}

func (e *OptionsParseError) Unwrap() error {
	return e.Err
}

// Options are per-repository review options, loaded from the repo itself.
type Options struct {
	// Enabled determines if reviewloop reviews this repository.
	Enabled bool `yaml:"enabled"`
	// Exclude is a list of glob patterns for files to skip.
	// Example: ["vendor/**", "*.gen.go", "docs/**"]
	Exclude []string `yaml:"exclude"`
	// Instructions provides extra guidance for the review service,
	// appended to the run's custom instructions.
	Instructions string `yaml:"instructions"`
}

// DefaultOptions returns the default repository options.
func DefaultOptions() *Options {
	return &Options{Enabled: true}
}

// FileFetcher fetches a single file's content from a repository.
// *github.Client satisfies it.
type FileFetcher interface {
	FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}

// Loader loads repository options from repositories.
type Loader struct {
	client FileFetcher
}

// NewLoader creates a new options loader.
func NewLoader(client FileFetcher) *Loader {
	return &Loader{client: client}
}

// Load fetches and parses the options file from a repository.
// A missing file yields defaults; an invalid file yields an
// OptionsParseError so callers can surface the user error.
func (l *Loader) Load(ctx context.Context, owner, repo, ref string) (*Options, error) {
	content, err := l.client.FetchFileContent(ctx, owner, repo, OptionsPath, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch options: %w", err)
	}

	if content == "" {
		return DefaultOptions(), nil
	}

	opts, err := ParseOptions([]byte(content))
	if err != nil {
		return nil, &OptionsParseError{Path: OptionsPath, Err: err}
	}
	return opts, nil
}

// ParseOptions parses repository options from YAML content.
func ParseOptions(content []byte) (*Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(content, opts); err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}
	return opts, nil
}

// ShouldExcludeFile returns true if the file path matches any exclude pattern.
func (o *Options) ShouldExcludeFile(path string) bool {
	for _, pattern := range o.Exclude {
		// Handle ** patterns by checking directory prefix and suffix.
		if strings.Contains(pattern, "**") {
			prefix := strings.Split(pattern, "**")[0]
			if prefix != "" && strings.HasPrefix(path, prefix) {
				suffix := strings.Split(pattern, "**")[1]
				if suffix == "" || strings.HasSuffix(path, strings.TrimPrefix(suffix, "/")) {
					return true
				}
			}
			if prefix != "" && strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")) {
				return true
			}
		}

		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}

		// Also match just the filename for patterns like "*.gen.go".
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}
