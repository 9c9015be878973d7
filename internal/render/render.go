// Package render converts generated markdown documents to DOCX.
package render

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobpipe/internal/resilience"
)

// ErrUnsupported is returned when the converter is not installed.
var ErrUnsupported = eris.New("render: converter not available")

// Renderer converts a markdown file to DOCX.
type Renderer interface {
	DOCX(ctx context.Context, mdPath, docxPath string) error
}

// Pandoc renders with the pandoc binary.
type Pandoc struct {
	path   string
	budget resilience.Budget
}

// NewPandoc creates a Pandoc renderer. If path is empty, "pandoc" is used.
func NewPandoc(path string, budget resilience.Budget) *Pandoc {
	if path == "" {
		path = "pandoc"
	}
	return &Pandoc{path: path, budget: budget}
}

// DOCX implements Renderer.
func (p *Pandoc) DOCX(ctx context.Context, mdPath, docxPath string) error {
	bin, err := exec.LookPath(p.path)
	if err != nil {
		return eris.Wrapf(ErrUnsupported, "render: %s", p.path)
	}

	_, err = resilience.Invoke(ctx, resilience.Op{Name: "render: pandoc", Scope: resilience.ScopeItem}, p.budget,
		func(ctx context.Context) (struct{}, error) {
			cmd := exec.CommandContext(ctx, bin, mdPath, "-f", "markdown", "-t", "docx", "-o", docxPath)
			var stderr bytes.Buffer
			cmd.Stderr = &stderr
			if err := cmd.Run(); err != nil {
				return struct{}{}, eris.Wrapf(err, "render: pandoc %s: %s", mdPath, strings.TrimSpace(stderr.String()))
			}
			return struct{}{}, nil
		})
	return err
}
