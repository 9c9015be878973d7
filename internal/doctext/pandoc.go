package doctext

import "context"

// Pandoc extracts text from DOCX files with pandoc.
type Pandoc struct {
	binPath string
}

// NewPandoc creates a Pandoc extractor. If binPath is empty, "pandoc" is
// used.
func NewPandoc(binPath string) *Pandoc {
	if binPath == "" {
		binPath = "pandoc"
	}
	return &Pandoc{binPath: binPath}
}

// ExtractText converts the document to plain text.
func (p *Pandoc) ExtractText(ctx context.Context, path string) (string, error) {
	return run(ctx, "pandoc", p.binPath, path, "-t", "plain", "--wrap=none")
}
