// Package ai generates the documents of a tailored application package
// through a pluggable text generation backend.
package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobpipe/internal/config"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/pkg/anthropic"
)

// Backend names accepted by ai.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderClaudeCLI = "claude-cli"
)

var (
	// ErrMissingKey is returned, escalated to the tenant scope, when the
	// selected backend has no credential.
	ErrMissingKey = eris.New("ai: missing api key")
	// ErrEmptyResponse is returned when a backend answers with no text.
	ErrEmptyResponse = eris.New("ai: empty response")
)

// Prompt is one generation request.
type Prompt struct {
	// Document labels the call in logs, e.g. "resume".
	Document string
	// System carries reference material. Backends that support prompt
	// caching mark it cacheable.
	System string
	User   string
}

// Generator produces text for a prompt. Implementations classify their
// errors: rate limits, quota and overload are transient, and rejected
// credentials escalate to the tenant scope.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// New builds the generator selected by cfg.AI.Provider.
func New(cfg *config.Config) (Generator, error) {
	switch cfg.AI.Provider {
	case ProviderAnthropic, "":
		var client anthropic.Client
		if cfg.Anthropic.Key != "" {
			client = anthropic.NewClient(cfg.Anthropic.Key)
		}
		return NewAnthropic(client, cfg.Anthropic.Model, cfg.AI.MaxTokens), nil
	case ProviderGemini:
		return NewGemini(cfg.Gemini.Key, cfg.Gemini.Model, cfg.AI.MaxTokens), nil
	case ProviderClaudeCLI:
		return NewClaudeCLI(cfg.ClaudeCLI.Path, cfg.ClaudeCLI.Model), nil
	default:
		return nil, eris.Errorf("ai: unknown provider %q", cfg.AI.Provider)
	}
}

var authPatterns = []string{
	"api key not valid",
	"api_key_invalid",
	"invalid api key",
	"invalid x-api-key",
	"authentication_error",
	"permission denied",
	"permissiondenied",
	"unauthenticated",
	"please run /login",
}

var transientPatterns = []string{
	"overloaded",
	"resourceexhausted",
	"resource exhausted",
	"unavailable",
	"try again later",
}

// classify marks err for the call adapter using the HTTP status when the
// backend exposes one and the message otherwise.
func classify(err error, status int) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(msg, authPatterns):
		return resilience.Escalate(err, resilience.ScopeTenant)
	case resilience.IsTransientHTTPStatus(status) || status == 529:
		return resilience.NewTransientError(err, status)
	case resilience.IsTransient(err) || containsAny(msg, transientPatterns):
		return resilience.NewTransientError(err, status)
	}
	return err
}

func missingKey(provider string) error {
	return resilience.Escalate(eris.Wrapf(ErrMissingKey, "ai: %s", provider), resilience.ScopeTenant)
}

func emptyResponse(provider, document string) error {
	return eris.Wrapf(ErrEmptyResponse, "ai: %s %s", provider, document)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// IsMissingKey reports whether err comes from an unconfigured backend.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}
