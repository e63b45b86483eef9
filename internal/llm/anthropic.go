package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/analyst/internal/logger"
)

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	cfg    Config
	logger logger.Logger
}

// NewAnthropic creates a completion client for the configured model.
func NewAnthropic(cfg Config, log logger.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	cfg.SetDefaults()

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		logger: log,
	}, nil
}

// Complete sends one message exchange and returns the concatenated text
// blocks. Provider errors are returned as-is for the caller to classify;
// nothing is retried here.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Debug("completion finished",
		logger.String("model", c.cfg.Model),
		logger.Int64("input_tokens", msg.Usage.InputTokens),
		logger.Int64("output_tokens", msg.Usage.OutputTokens),
		logger.String("stop_reason", string(msg.StopReason)),
	)

	return out, nil
}
