package model

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Posting is a single job posting discovered by the acquisition phase.
// Its identity across sources and runs is Fingerprint.
type Posting struct {
	Fingerprint    string              `json:"fingerprint"`
	Source         string              `json:"source"`
	SourceID       string              `json:"source_id,omitempty"`
	Title          string              `json:"title"`
	Company        string              `json:"company"`
	Location       string              `json:"location,omitempty"`
	Description    string              `json:"description,omitempty"`
	ApplyURL       string              `json:"apply_url,omitempty"`
	PostedDate     string              `json:"posted_date,omitempty"`
	SalaryMin      float64             `json:"salary_min,omitempty"`
	SalaryMax      float64             `json:"salary_max,omitempty"`
	SalaryRaw      string              `json:"salary_raw,omitempty"`
	EmploymentType string              `json:"employment_type,omitempty"`
	IsRemote       bool                `json:"is_remote,omitempty"`
	Highlights     map[string][]string `json:"highlights,omitempty"`
	Relevance      float64             `json:"relevance,omitempty"`
	FetchedAt      time.Time           `json:"fetched_at"`
}

// Salary returns the best available salary for threshold comparisons:
// the upper bound when present, otherwise the lower bound. Zero means unknown.
func (p *Posting) Salary() float64 {
	if p.SalaryMax > 0 {
		return p.SalaryMax
	}
	return p.SalaryMin
}

// SalaryLabel formats the salary range for display.
func (p *Posting) SalaryLabel() string {
	switch {
	case p.SalaryMin > 0 && p.SalaryMax > 0 && p.SalaryMin != p.SalaryMax:
		return formatMoney(p.SalaryMin) + " - " + formatMoney(p.SalaryMax)
	case p.Salary() > 0:
		return formatMoney(p.Salary())
	case p.SalaryRaw != "":
		return p.SalaryRaw
	default:
		return ""
	}
}

var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(v float64) string {
	return moneyPrinter.Sprintf("$%d", int64(v))
}

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// FileStem turns free text into a file name component: path-hostile
// characters are dropped, whitespace runs become underscores, and the
// result is capped at 80 bytes.
func FileStem(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "_")
	if len(s) > 80 {
		s = strings.ToValidUTF8(s[:80], "")
	}
	return s
}
