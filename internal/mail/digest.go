package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

//go:embed digest.html.tmpl
var digestSource string

var digestTmpl = template.Must(template.New("digest").Funcs(template.FuncMap{
	"even":            func(i int) bool { return i%2 == 0 },
	"confidence":      confidenceLabel,
	"confidenceColor": confidenceColor,
	"paragraphs":      paragraphs,
}).Parse(digestSource))

// Item is one tailored package in a digest.
type Item struct {
	Company  string
	Role     string
	Location string
	Salary   string
	ApplyURL string
	// Confidence is the match percentage, or -1 when unknown.
	Confidence  int
	CoverLetter string
	Attachments []Attachment
}

// Digest is the per-tenant notification listing new packages.
type Digest struct {
	Candidate string
	Items     []Item
	Generated time.Time
}

// Subject returns the digest email subject.
func (d Digest) Subject() string {
	return "Job Pipeline: " + d.headline()
}

func (d Digest) headline() string {
	n := len(d.Items)
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return fmt.Sprintf("%d new tailored application%s ready", n, plural)
}

// PlainText is the text alternative of the HTML body.
func (d Digest) PlainText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new tailored application packages are ready for your review.\n\n", len(d.Items))
	for _, it := range d.Items {
		fmt.Fprintf(&b, "- %s, %s (%s) %s\n", it.Role, it.Company, confidenceLabel(it.Confidence), it.ApplyURL)
	}
	b.WriteString("\nSee the attached resumes and cover letters.\n")
	return b.String()
}

// Attachments returns every item's attachments in order.
func (d Digest) Attachments() []Attachment {
	var out []Attachment
	for _, it := range d.Items {
		out = append(out, it.Attachments...)
	}
	return out
}

// HTML renders the digest page.
func (d Digest) HTML() (string, error) {
	var buf bytes.Buffer
	err := digestTmpl.Execute(&buf, struct {
		Digest
		Headline  string
		Generated string
	}{d, d.headline(), d.Generated.Format("January 02, 2006 at 03:04 PM")})
	if err != nil {
		return "", eris.Wrap(err, "mail: render digest")
	}
	return buf.String(), nil
}

// Message builds the email for the digest.
func (d Digest) Message(from, to string) (Message, error) {
	html, err := d.HTML()
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:        from,
		To:          to,
		Subject:     d.Subject(),
		HTML:        html,
		Text:        d.PlainText(),
		Attachments: d.Attachments(),
	}, nil
}

func confidenceLabel(c int) string {
	if c < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d%%", c)
}

func confidenceColor(c int) string {
	switch {
	case c < 0:
		return "#6b7280"
	case c >= 90:
		return "#22c55e"
	case c >= 75:
		return "#f59e0b"
	default:
		return "#ef4444"
	}
}

// paragraphs splits text on blank lines and joins wrapped lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(text), "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
