// Package doctext extracts plain text from uploaded resumes and cover
// letters.
package doctext

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobpipe/internal/config"
)

// ErrUnsupported is returned for file types with no extractor.
var ErrUnsupported = eris.New("doctext: unsupported file type")

// Extractor turns a document on disk into text.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Dispatcher picks an extractor by file extension.
type Dispatcher struct {
	pdf  Extractor
	docx Extractor
}

// New builds a Dispatcher from config.
func New(cfg config.DocTextConfig) *Dispatcher {
	return &Dispatcher{
		pdf:  NewPdfToText(cfg.PdfToTextPath),
		docx: NewPandoc(cfg.PandocPath),
	}
}

// ExtractText implements Extractor. Plain text and markdown are read as is.
func (d *Dispatcher) ExtractText(ctx context.Context, path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = d.pdf.ExtractText(ctx, path)
	case ".docx":
		text, err = d.docx.ExtractText(ctx, path)
	case ".txt", ".md":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
		if err != nil {
			err = eris.Wrapf(err, "doctext: read %s", path)
		}
	default:
		return "", eris.Wrapf(ErrUnsupported, "doctext: %s", filepath.Base(path))
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func run(ctx context.Context, tool, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "doctext: %s failed: %s", tool, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
