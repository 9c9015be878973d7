package ai

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobpipe/internal/config"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*anthropic.MessageResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func TestNew_Providers(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: ProviderAnthropic, MaxTokens: 100}}
	g, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, g.Name())

	cfg.AI.Provider = ProviderGemini
	g, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, g)

	cfg.AI.Provider = ProviderClaudeCLI
	g, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ClaudeCLI{}, g)

	cfg.AI.Provider = "gpt"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestAnthropic_Generate(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.MaxTokens == 4096 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			req.Messages[0].Content == "tailor"
	})).Return(textResponse("  # Resume\n"), nil)

	g := NewAnthropic(client, "claude-sonnet-4-5-20250929", 4096)
	out, err := g.Generate(context.Background(), Prompt{Document: DocResume, System: "library", User: "tailor"})
	require.NoError(t, err)
	assert.Equal(t, "# Resume", out)
	client.AssertExpectations(t)
}

func TestAnthropic_MissingKeyEscalatesToTenant(t *testing.T) {
	g := NewAnthropic(nil, "m", 10)
	_, err := g.Generate(context.Background(), Prompt{Document: DocResume, User: "x"})
	require.Error(t, err)
	assert.True(t, IsMissingKey(err))
	assert.Equal(t, resilience.ScopeTenant, resilience.ScopeOf(err))
}

func TestAnthropic_EmptyResponse(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil)

	_, err := NewAnthropic(client, "m", 10).Generate(context.Background(), Prompt{Document: DocReport})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.False(t, resilience.IsTransient(err))
}

func TestAnthropic_ErrorClassification(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, eris.New("boom")).Once()

	_, err := NewAnthropic(client, "m", 10).Generate(context.Background(), Prompt{})
	require.Error(t, err)
	assert.Equal(t, resilience.ScopeItem, resilience.ScopeOf(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		transient bool
		scope     resilience.Scope
	}{
		{"unauthorized", eris.New("denied"), http.StatusUnauthorized, false, resilience.ScopeTenant},
		{"forbidden", eris.New("denied"), http.StatusForbidden, false, resilience.ScopeTenant},
		{"invalid key message", eris.New("API key not valid. Please pass a valid API key."), 0, false, resilience.ScopeTenant},
		{"rate limited", eris.New("slow down"), http.StatusTooManyRequests, true, resilience.ScopeItem},
		{"overloaded status", eris.New("busy"), 529, true, resilience.ScopeItem},
		{"quota message", eris.New("rpc error: code = ResourceExhausted desc = quota"), 0, true, resilience.ScopeItem},
		{"overloaded message", eris.New("Overloaded"), 0, true, resilience.ScopeItem},
		{"bad request", eris.New("invalid model"), http.StatusBadRequest, false, resilience.ScopeItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, tt.status)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
			assert.Equal(t, tt.scope, resilience.ScopeOf(err))
		})
	}
	assert.NoError(t, classify(nil, 500))
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := NewGemini("", "gemini-1.5-pro", 100).Generate(context.Background(), Prompt{})
	require.Error(t, err)
	assert.True(t, IsMissingKey(err))
	assert.Equal(t, resilience.ScopeTenant, resilience.ScopeOf(err))
}

func TestGeminiText_Empty(t *testing.T) {
	assert.Empty(t, geminiText(nil))
}

// fakeCLI writes an executable shell script standing in for the claude
// binary.
func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestClaudeCLI_Generate(t *testing.T) {
	t.Setenv("CLAUDECODE", "1")
	argsFile := filepath.Join(t.TempDir(), "args")
	path := fakeCLI(t, `echo "$@" > `+argsFile+`
echo "env=${CLAUDECODE:-unset}"
cat
`)

	out, err := NewClaudeCLI(path, "sonnet").Generate(context.Background(), Prompt{
		Document: DocCoverLetter,
		System:   "voice",
		User:     "write",
	})
	require.NoError(t, err)
	assert.Equal(t, "env=unset\nvoice\n\nwrite", out)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-p --model sonnet --no-session-persistence --output-format text\n", string(args))
}

func TestClaudeCLI_RateLimitIsTransient(t *testing.T) {
	path := fakeCLI(t, "echo 'API Error: rate limit exceeded' >&2\nexit 1\n")

	_, err := NewClaudeCLI(path, "").Generate(context.Background(), Prompt{Document: DocResume})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestClaudeCLI_LoginEscalates(t *testing.T) {
	path := fakeCLI(t, "echo 'Invalid API key · Please run /login'\nexit 1\n")

	_, err := NewClaudeCLI(path, "").Generate(context.Background(), Prompt{Document: DocResume})
	require.Error(t, err)
	assert.Equal(t, resilience.ScopeTenant, resilience.ScopeOf(err))
}

func TestClaudeCLI_MissingBinary(t *testing.T) {
	_, err := NewClaudeCLI(filepath.Join(t.TempDir(), "missing"), "").Generate(context.Background(), Prompt{})
	require.Error(t, err)
	assert.Equal(t, resilience.ScopeTenant, resilience.ScopeOf(err))
}

func TestClaudeCLI_EmptyOutput(t *testing.T) {
	path := fakeCLI(t, "exit 0\n")

	_, err := NewClaudeCLI(path, "").Generate(context.Background(), Prompt{Document: DocReport})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestPrompts(t *testing.T) {
	m := Materials{
		Candidate:      "Jane Doe",
		ResumeLibrary:  "=== RESUME FILE: a.md ===\nExperience\n=== END FILE ===",
		BaseResume:     "Base",
		DiscoveryNotes: "Led 12 teams",
		CoverLibrary:   "Dear team",
	}
	job := Job{Company: "Acme", Role: "Scrum Master", Location: "Toronto, ON", JD: "We need a scrum master."}

	p, err := ResumePrompt(m, job)
	require.NoError(t, err)
	assert.Equal(t, DocResume, p.Document)
	assert.Contains(t, p.System, "Experience")
	assert.Contains(t, p.System, "Led 12 teams")
	assert.Contains(t, p.User, "Scrum Master at Acme (Toronto, ON)")
	assert.Contains(t, p.User, ResumeStart)
	assert.Contains(t, p.User, "We need a scrum master.")

	p, err = CoverLetterPrompt(m, job, "TAILORED")
	require.NoError(t, err)
	assert.Contains(t, p.System, "Dear team")
	assert.Contains(t, p.User, "TAILORED")
	assert.Contains(t, p.User, "sample letters")

	m.CoverLibrary = ""
	p, err = CoverLetterPrompt(m, job, "TAILORED")
	require.NoError(t, err)
	assert.Empty(t, p.System)
	assert.NotContains(t, p.User, "sample letters")

	p, err = ReportPrompt(m, job, "TAILORED")
	require.NoError(t, err)
	assert.Equal(t, "BASE RESUME\n\nBase", p.System)
	assert.Contains(t, p.User, "Overall JD Coverage")
}

func TestExtractBetween(t *testing.T) {
	raw := "noise\n<<RESUME_START>>\n# Jane\n<<RESUME_END>>\ntrailer"
	assert.Equal(t, "# Jane", ExtractBetween(raw, ResumeStart, ResumeEnd))
	assert.Empty(t, ExtractBetween("<<RESUME_END>> <<RESUME_START>>", ResumeStart, ResumeEnd))
	assert.Empty(t, ExtractBetween("no markers", ResumeStart, ResumeEnd))

	assert.Equal(t, "# Jane", ResumeBody(raw))
	assert.Equal(t, "plain resume", ResumeBody("  plain resume \n"))
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, 87, ParseConfidence("## Content Mapping\n**Overall JD Coverage: 87%** (direct 60%)"))
	assert.Equal(t, 92, ParseConfidence("Overall Confidence | 92%"))
	assert.Equal(t, -1, ParseConfidence("Overall Confidence: high"))
	assert.Equal(t, -1, ParseConfidence("no score here 50%"))
}
