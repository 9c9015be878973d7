package source

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// minATSDescription is the shortest page text accepted as a description.
// JS-rendered career sites come back nearly empty.
const minATSDescription = 200

var (
	spaceRuns   = regexp.MustCompile(`[ \t\r\f\v]+`)
	paddedBreak = regexp.MustCompile(` ?\n ?`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText converts a job description's HTML into readable plain text.
// Paragraphs become blank lines, list items become "- " bullets and
// headings become "## " lines.
func HTMLToText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return selectionText(doc.Selection)
}

func selectionText(sel *goquery.Selection) string {
	var b strings.Builder
	writeText(&b, sel)
	text := spaceRuns.ReplaceAllString(b.String(), " ")
	text = paddedBreak.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func writeText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "#text":
			b.WriteString(s.Text())
		case "br":
			b.WriteString("\n")
		case "li":
			b.WriteString("\n- ")
			writeText(b, s)
		case "p", "div":
			b.WriteString("\n\n")
			writeText(b, s)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n## ")
			writeText(b, s)
			b.WriteString("\n")
		case "script", "style", "noscript", "#comment":
		default:
			writeText(b, s)
		}
	})
}

// pageText fetches a career page and extracts its readable body text.
// Navigation chrome is dropped. Any failure yields "".
func (c *Client) pageText(ctx context.Context, pageURL string) string {
	if !strings.HasPrefix(pageURL, "http") {
		return ""
	}
	body, err := c.get(ctx, atsPages, pageURL, nil)
	if err != nil {
		zap.L().Debug("source: career page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return selectionText(root)
}
