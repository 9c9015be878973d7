package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/pkg/anthropic"
)

// Anthropic generates text with the Anthropic Messages API. The system
// prompt is sent as a cached block so the resume library is billed at the
// cache-read rate on an item's later calls.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps client. A nil client makes every call fail with
// ErrMissingKey.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Generator.
func (a *Anthropic) Name() string { return ProviderAnthropic }

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, p Prompt) (string, error) {
	if a.client == nil {
		return "", missingKey(ProviderAnthropic)
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(p.System),
		Messages:  []anthropic.Message{{Role: "user", Content: p.User}},
	})
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(a.model, p.Document)

	if resp.StopReason == "max_tokens" {
		zap.L().Warn("ai: response truncated at max tokens",
			zap.String("document", p.Document),
			zap.Int64("max_tokens", a.maxTokens),
		)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", emptyResponse(ProviderAnthropic, p.Document)
	}
	return text, nil
}
