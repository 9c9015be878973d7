// Package screen decides whether a posting is worth tailoring: tenant
// filters, relevance scoring, salary backfill and apply-URL liveness.
package screen

import (
	"strings"

	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// Filter holds a tenant's filter rules plus the candidate's home province.
type Filter struct {
	rules    tenant.Filters
	province string
}

// NewFilter builds a filter from tenant rules. candidateLocation restricts
// non-remote postings to the candidate's province when one can be derived.
func NewFilter(rules tenant.Filters, candidateLocation string) *Filter {
	return &Filter{rules: rules, province: Province(candidateLocation)}
}

// Match reports whether p passes every rule, and if not, which one failed.
func (f *Filter) Match(p *model.Posting) (bool, string) {
	title := strings.ToLower(p.Title)
	company := strings.ToLower(p.Company)
	combined := title + " " + company + " " + strings.ToLower(p.Description)

	for _, exc := range f.rules.ExcludeCompanies {
		if exc != "" && strings.Contains(company, strings.ToLower(exc)) {
			return false, "excluded company " + exc
		}
	}

	if len(f.rules.MustContain) > 0 && !containsAny(combined, f.rules.MustContain) {
		return false, "missing required keyword"
	}

	for _, kw := range f.rules.ExcludeKeywords {
		if kw != "" && strings.Contains(combined, strings.ToLower(kw)) {
			return false, "excluded keyword " + kw
		}
	}

	if f.rules.MinSalary > 0 {
		if sal := p.Salary(); sal > 0 && sal < f.rules.MinSalary {
			return false, "salary below minimum"
		}
	}

	applyURL := strings.ToLower(p.ApplyURL)
	if len(f.rules.IncludeDomains) > 0 && !containsAny(applyURL, f.rules.IncludeDomains) {
		return false, "apply domain not allowed"
	}
	for _, d := range f.rules.ExcludeDomains {
		if d != "" && strings.Contains(applyURL, strings.ToLower(d)) {
			return false, "excluded domain " + d
		}
	}

	if f.province != "" && !IsRemote(p) && p.Location != "" && Province(p.Location) != f.province {
		return false, "outside " + f.province
	}

	return true, ""
}

// IsRemote reports whether a posting is explicitly remote.
func IsRemote(p *model.Posting) bool {
	return p.IsRemote || strings.Contains(strings.ToLower(p.Title), "remote")
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
