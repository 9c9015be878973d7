package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini generates text with the Google Gemini API.
type Gemini struct {
	key       string
	model     string
	maxTokens int32
	opts      []option.ClientOption
}

// NewGemini creates a Gemini backend. Extra client options are appended
// after the API key.
func NewGemini(key, model string, maxTokens int64, opts ...option.ClientOption) *Gemini {
	return &Gemini{key: key, model: model, maxTokens: int32(maxTokens), opts: opts}
}

// Name implements Generator.
func (g *Gemini) Name() string { return ProviderGemini }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	if g.key == "" {
		return "", missingKey(ProviderGemini)
	}

	opts := append([]option.ClientOption{option.WithAPIKey(g.key)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", eris.Wrap(err, "ai: gemini client")
	}
	defer client.Close() //nolint:errcheck

	model := client.GenerativeModel(g.model)
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(g.maxTokens)
	}
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", classify(eris.Wrap(err, "ai: gemini generate"), geminiStatus(err))
	}

	text := strings.TrimSpace(geminiText(resp))
	if text == "" {
		return "", emptyResponse(ProviderGemini, p.Document)
	}
	return text, nil
}

func geminiStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
