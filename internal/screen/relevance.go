package screen

import (
	"regexp"
	"strings"

	"github.com/sells-group/jobpipe/internal/tenant"
)

const (
	titlePenalty  = 0.5
	headerPenalty = 0.1
	densityCap    = 20.0
)

// Score rates how well a posting matches the tenant's focus areas, from 0
// to 1, along with each area's weighted contribution. With no focus areas
// every posting scores 1.
func Score(title, text string, rel tenant.Relevance) (float64, map[string]float64) {
	if len(rel.FocusAreas) == 0 {
		return 1.0, map[string]float64{}
	}

	lower := strings.ToLower(text)
	breakdown := make(map[string]float64, len(rel.FocusAreas))

	var totalWeight, sum float64
	for _, area := range rel.FocusAreas {
		weight := area.Weight
		if weight == 0 {
			weight = 1
		}
		totalWeight += weight
		if len(area.Keywords) == 0 {
			continue
		}

		matched, occurrences := 0, 0
		for _, kw := range area.Keywords {
			k := strings.ToLower(kw)
			if k == "" || !strings.Contains(lower, k) {
				continue
			}
			matched++
			occurrences += strings.Count(lower, k)
		}

		breadth := float64(matched) / float64(len(area.Keywords))
		density := min(float64(occurrences)/densityCap, 1.0)
		s := (breadth*0.7 + density*0.3) * weight
		breakdown[area.Name] = s
		sum += s
	}

	score := 0.0
	if totalWeight > 0 {
		score = sum / totalWeight
	}
	return max(score-antiSignalPenalty(title, text, rel.AntiSignals), 0), breakdown
}

func antiSignalPenalty(title, text string, signals []string) float64 {
	if len(signals) == 0 {
		return 0
	}
	res := make([]*regexp.Regexp, 0, len(signals))
	for _, s := range signals {
		if s == "" {
			continue
		}
		res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(s))+`\b`))
	}

	titleLower := strings.ToLower(title)
	for _, re := range res {
		if re.MatchString(titleLower) {
			return titlePenalty
		}
	}

	lines := strings.SplitN(text, "\n", 6)
	header := strings.ToLower(strings.Join(lines[:min(len(lines), 5)], "\n"))
	for _, re := range res {
		if re.MatchString(header) {
			return headerPenalty
		}
	}
	return 0
}
