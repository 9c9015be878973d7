package ai

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobpipe/internal/resilience"
)

// ClaudeCLI generates text by running the claude binary in print mode. The
// prompt is passed on stdin.
type ClaudeCLI struct {
	path  string
	model string
}

// NewClaudeCLI creates a subprocess backend. An empty path means "claude"
// on PATH.
func NewClaudeCLI(path, model string) *ClaudeCLI {
	if path == "" {
		path = "claude"
	}
	return &ClaudeCLI{path: path, model: model}
}

// Name implements Generator.
func (c *ClaudeCLI) Name() string { return ProviderClaudeCLI }

func (c *ClaudeCLI) args() []string {
	args := []string{"-p"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return append(args, "--no-session-persistence", "--output-format", "text")
}

// Generate implements Generator.
func (c *ClaudeCLI) Generate(ctx context.Context, p Prompt) (string, error) {
	prompt := p.User
	if p.System != "" {
		prompt = p.System + "\n\n" + p.User
	}

	cmd := exec.CommandContext(ctx, c.path, c.args()...)
	cmd.Env = cliEnv()
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", resilience.Escalate(eris.Wrapf(err, "ai: claude cli %q", c.path), resilience.ScopeTenant)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", classify(eris.Wrapf(err, "ai: claude cli %s: %s", p.Document, detail), 0)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", emptyResponse(ProviderClaudeCLI, p.Document)
	}
	return text, nil
}

// cliEnv drops CLAUDECODE so the binary does not refuse to start when the
// pipeline itself runs inside a claude session.
func cliEnv() []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
