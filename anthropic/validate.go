// Package anthropic performs pre-flight checks on bring-your-own
// provider keys before a review run spends time fetching pull request
// data.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ValidateAPIKey checks a provider key against the Anthropic API with a
// single one-token Haiku request. A rejected key yields an error that
// names the key only by its trailing characters.
func ValidateAPIKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return errors.New("provider key is empty")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.ModelClaude3_5HaikuLatest),
		MaxTokens: anthropic.F(int64(1)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		}),
	})
	if err != nil {
		return fmt.Errorf("provider key ending in %q was rejected: %w", KeyHint(apiKey), err)
	}

	return nil
}

// KeyHint returns the last 4 characters of a key, for log output that
// must never carry the key itself.
func KeyHint(apiKey string) string {
	if len(apiKey) < 4 {
		return "****"
	}
	return apiKey[len(apiKey)-4:]
}
