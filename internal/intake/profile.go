package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/jobpipe/internal/tenant"
)

// DefaultMinScore is the relevance threshold for imported tenants.
const DefaultMinScore = 0.3

// DefaultAntiSignals down-rank postings outside the candidate's line of work.
var DefaultAntiSignals = []string{
	"sales", "presales", "pre-sales", "account executive",
	"business development", "marketing", "recruiter", "staffing",
}

// roleKeywords expands a role word into related search terms. Order is
// significant: expansions are appended in this order.
var roleKeywords = []struct {
	key      string
	keywords []string
}{
	{"security", []string{"security", "cybersecurity", "cyber security", "infosec", "information security"}},
	{"risk", []string{"risk", "risk management", "risk assessment", "risk analysis", "enterprise risk"}},
	{"grc", []string{"GRC", "governance", "compliance", "audit", "regulatory", "policy"}},
	{"analyst", []string{"analyst", "analysis", "assessment", "evaluation"}},
	{"architect", []string{"architect", "architecture", "design", "framework"}},
	{"scrum", []string{"scrum", "agile", "sprint", "backlog", "scrum master", "kanban"}},
	{"product", []string{"product manager", "product owner", "roadmap", "stakeholder", "product strategy"}},
	{"project", []string{"project manager", "project management", "PMO", "PMP", "waterfall"}},
	{"devops", []string{"devops", "CI/CD", "deployment", "infrastructure", "automation"}},
	{"cloud", []string{"cloud", "AWS", "Azure", "GCP", "cloud security"}},
	{"soc", []string{"SOC", "incident response", "SIEM", "threat detection", "security operations", "security monitoring"}},
	{"penetration", []string{"penetration testing", "vulnerability assessment", "ethical hacking", "security testing"}},
	{"data", []string{"data", "data analysis", "data science", "analytics", "business intelligence"}},
	{"network", []string{"network", "network security", "firewall", "IDS", "IPS"}},
}

var certSplit = regexp.MustCompile(`[,;\n]`)

// keywordSet appends keywords, dropping case-insensitive duplicates.
type keywordSet struct {
	seen map[string]bool
	list []string
}

func (k *keywordSet) add(words ...string) {
	if k.seen == nil {
		k.seen = make(map[string]bool)
	}
	for _, w := range words {
		lw := strings.ToLower(w)
		if w == "" || k.seen[lw] {
			continue
		}
		k.seen[lw] = true
		k.list = append(k.list, w)
	}
}

// BuildRelevance creates one focus area per role, weighted 3, 2, then 1.
// Certifications are added to the first area.
func BuildRelevance(roles []string, certs string) tenant.Relevance {
	areas := make([]tenant.FocusArea, 0, len(roles))
	for i, role := range roles {
		var kw keywordSet
		kw.add(role)
		lower := strings.ToLower(role)
		for _, rk := range roleKeywords {
			if strings.Contains(lower, rk.key) {
				kw.add(rk.keywords...)
			}
		}
		areas = append(areas, tenant.FocusArea{
			Name:     role,
			Weight:   float64(max(3-i, 1)),
			Keywords: kw.list,
		})
	}

	if len(areas) > 0 && strings.TrimSpace(certs) != "" {
		kw := keywordSet{}
		kw.add(areas[0].Keywords...)
		for _, c := range certSplit.Split(certs, -1) {
			kw.add(strings.TrimSpace(c))
		}
		areas[0].Keywords = kw.list
	}

	return tenant.Relevance{
		FocusAreas:  areas,
		AntiSignals: append([]string(nil), DefaultAntiSignals...),
		MinScore:    DefaultMinScore,
	}
}

type section struct {
	value       string
	heading     string
	noteHeading string
}

func (p *Payload) sections() []section {
	d := p.Discovery
	return []section{
		{d.TeamSize, "Leadership Scale", "Team Leadership Scale"},
		{d.Budget, "Largest Budget/Project", "Largest Project/Budget"},
		{d.Metrics, "Key Metrics & Improvements", "Measurable Improvements"},
		{d.Certs, "Certifications", "Certifications"},
		{d.Challenge, "Notable Challenge Overcome", "Challenge Overcome"},
		{d.Tools, "Tools & Technologies", "Tools & Technologies"},
		{d.Industries, "Industries", "Industries Worked In"},
		{d.Hidden, "Underrepresented Experience", "Underrepresented Experience"},
	}
}

// DiscoverySupplement renders the discovery answers as a resume library
// entry. It supplements a real resume and is never used on its own.
func DiscoverySupplement(p *Payload) string {
	parts := []string{fmt.Sprintf("# Discovery Supplement: %s\n", p.Name())}
	for _, s := range p.sections() {
		if strings.TrimSpace(s.value) != "" {
			parts = append(parts, fmt.Sprintf("## %s\n%s\n", s.heading, s.value))
		}
	}
	return strings.Join(parts, "\n")
}

// DiscoveryNotes renders discovery_notes.md. The date is the submission
// date, or now when the payload has none.
func DiscoveryNotes(p *Payload, now time.Time) string {
	date := p.SubmittedAt
	if date == "" {
		date = now.Format("2006-01-02")
	}
	if len(date) > 10 {
		date = date[:10]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Discovery Notes: %s\n\n", p.Name())
	fmt.Fprintf(&b, "**Date:** %s\n\n---\n\n", date)
	for _, s := range p.sections() {
		if strings.TrimSpace(s.value) != "" {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.noteHeading, s.value)
		}
	}
	if strings.TrimSpace(p.PrefNotes) != "" {
		fmt.Fprintf(&b, "## Additional Notes\n\n%s\n\n", p.PrefNotes)
	}
	return b.String()
}
