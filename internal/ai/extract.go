package ai

import (
	"regexp"
	"strconv"
	"strings"
)

// Delimiters the resume prompt asks the model to wrap its answer in.
const (
	ResumeStart = "<<RESUME_START>>"
	ResumeEnd   = "<<RESUME_END>>"
)

// ExtractBetween returns the trimmed text between start and end, or "" when
// either marker is missing or they are out of order.
func ExtractBetween(text, start, end string) string {
	i := strings.Index(text, start)
	j := strings.Index(text, end)
	if i < 0 || j < 0 || j <= i {
		return ""
	}
	return strings.TrimSpace(text[i+len(start) : j])
}

// ResumeBody extracts the delimited resume, falling back to the whole
// response when the model ignored the delimiters.
func ResumeBody(raw string) string {
	if body := ExtractBetween(raw, ResumeStart, ResumeEnd); body != "" {
		return body
	}
	return strings.TrimSpace(raw)
}

var percentRe = regexp.MustCompile(`(\d+)%`)

// ParseConfidence reads the match percentage from a report's "Overall
// Confidence" or "Overall JD Coverage" line. It returns -1 when the report
// has none.
func ParseConfidence(report string) int {
	for _, line := range strings.Split(report, "\n") {
		if !strings.Contains(line, "Overall Confidence") && !strings.Contains(line, "Overall JD Coverage") {
			continue
		}
		m := percentRe.FindStringSubmatch(line)
		if m == nil {
			return -1
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}
