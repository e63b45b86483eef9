// Package llm provides the completion client used by every prompt-bearing
// stage: topic mapping, signal agents, writing, critique and QA judgment.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is one completion call. Zero MaxTokens/Temperature fall back to the
// client's configured defaults.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Client is the narrow completion interface components depend on.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds provider settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// SetDefaults applies default values for Config.
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
}
