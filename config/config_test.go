package config

import (
	"fmt"
	"testing"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(*Options) error
	}{
		{
			name:    "valid options",
			content: "enabled: true",
			wantErr: false,
			check: func(o *Options) error {
				if !o.Enabled {
					t.Error("Enabled should be true")
				}
				return nil
			},
		},
		{
			name:    "disabled",
			content: "enabled: false",
			wantErr: false,
			check: func(o *Options) error {
				if o.Enabled {
					t.Error("Enabled should be false")
				}
				return nil
			},
		},
		{
			name:    "invalid YAML",
			content: "enabled: [invalid",
			wantErr: true,
		},
		{
			name:    "with exclude patterns",
			content: "enabled: true\nexclude:\n  - vendor/**\n  - \"*.gen.go\"",
			wantErr: false,
			check: func(o *Options) error {
				if len(o.Exclude) != 2 {
					t.Errorf("Exclude length = %v, want 2", len(o.Exclude))
				}
				if o.Exclude[0] != "vendor/**" {
					t.Errorf("Exclude[0] = %v, want vendor/**", o.Exclude[0])
				}
				return nil
			},
		},
		{
			name:    "with instructions",
			content: "enabled: true\ninstructions: Focus on security",
			wantErr: false,
			check: func(o *Options) error {
				if o.Instructions != "Focus on security" {
					t.Errorf("Instructions = %v, want 'Focus on security'", o.Instructions)
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseOptions([]byte(tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseOptions() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				if err := tt.check(opts); err != nil {
					t.Errorf("check() failed: %v", err)
				}
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Enabled {
		t.Error("Default Enabled should be true")
	}
	if len(opts.Exclude) != 0 {
		t.Errorf("Default Exclude = %v, want empty", opts.Exclude)
	}
}

func TestShouldExcludeFile(t *testing.T) {
	tests := []struct {
		name    string
		exclude []string
		path    string
		want    bool
	}{
		{
			name:    "no patterns",
			exclude: nil,
			path:    "src/main.go",
			want:    false,
		},
		{
			name:    "vendor directory match",
			exclude: []string{"vendor/**"},
			path:    "vendor/github.com/foo/bar.go",
			want:    true,
		},
		{
			name:    "vendor root match",
			exclude: []string{"vendor/**"},
			path:    "vendor/foo.go",
			want:    true,
		},
		{
			name:    "non-vendor path",
			exclude: []string{"vendor/**"},
			path:    "src/vendor/fake.go",
			want:    false,
		},
		{
			name:    "generated file extension",
			exclude: []string{"*.gen.go"},
			path:    "internal/types.gen.go",
			want:    true,
		},
		{
			name:    "non-generated file",
			exclude: []string{"*.gen.go"},
			path:    "internal/types.go",
			want:    false,
		},
		{
			name:    "docs directory",
			exclude: []string{"docs/**"},
			path:    "docs/api/readme.md",
			want:    true,
		},
		{
			name:    "multiple patterns first match",
			exclude: []string{"vendor/**", "*.gen.go", "docs/**"},
			path:    "vendor/lib.go",
			want:    true,
		},
		{
			name:    "multiple patterns second match",
			exclude: []string{"vendor/**", "*.gen.go", "docs/**"},
			path:    "api/types.gen.go",
			want:    true,
		},
		{
			name:    "multiple patterns no match",
			exclude: []string{"vendor/**", "*.gen.go", "docs/**"},
			path:    "src/main.go",
			want:    false,
		},
		{
			name:    "exact filename pattern",
			exclude: []string{"go.sum"},
			path:    "go.sum",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &Options{Exclude: tt.exclude}
			if got := opts.ShouldExcludeFile(tt.path); got != tt.want {
				t.Errorf("ShouldExcludeFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestOptionsParseError(t *testing.T) {
	t.Run("error message includes path and underlying error", func(t *testing.T) {
		underlying := fmt.Errorf("yaml: line 1: could not find expected ':'")
		parseErr := &OptionsParseError{
			Path: ".github/reviewloop.yml",
			Err:  underlying,
		}

		errMsg := parseErr.Error()
		if errMsg != "invalid options at .github/reviewloop.yml: yaml: line 1: could not find expected ':'" {
			t.Errorf("Error() = %q, want message containing path and underlying error", errMsg)
		}
	})

	t.Run("Unwrap returns underlying error", func(t *testing.T) {
		underlying := fmt.Errorf("some parse error")
		parseErr := &OptionsParseError{
			Path: ".github/reviewloop.yml",
			Err:  underlying,
		}

		if parseErr.Unwrap() != underlying {
			t.Error("Unwrap() should return underlying error")
		}
	})
}
