package screen

import (
	"regexp"
	"strconv"
	"strings"
)

// salaryFloor rejects small dollar figures that are not annual salaries.
const salaryFloor = 20000

var (
	salaryRange  = regexp.MustCompile(`(?:CA|CAD)?\$\s*(\d[\d,]*)\s*(?:-|–|to)\s*(?:CA|CAD)?\$?\s*(\d[\d,]*)`)
	salaryKRange = regexp.MustCompile(`(?:CA|CAD)?\$\s*(\d+)\s*[kK]\s*(?:-|–|to)\s*(?:CA|CAD)?\$?\s*(\d+)\s*[kK]`)
	salaryLabel  = regexp.MustCompile(`[Ss]alary[:\s]+(?:CA|CAD)?\$\s*(\d[\d,]*)`)
	salarySingle = regexp.MustCompile(`(?:CA|CAD)?\$\s*(\d[\d,]*)`)

	hourlyMarkers = []string{"/hour", "per hour", "hourly", "/hr"}
)

// Salary is an annual salary range parsed from free text. Max is zero for
// a single figure.
type Salary struct {
	Min, Max float64
	Raw      string
}

// ExtractSalary finds the first annual salary mentioned in a description,
// line by line. Hourly lines are skipped.
func ExtractSalary(description string) (Salary, bool) {
	for _, line := range strings.Split(description, "\n") {
		lower := strings.ToLower(line)
		if containsAny(lower, hourlyMarkers) {
			continue
		}

		if m := salaryRange.FindStringSubmatch(line); m != nil {
			if s, ok := rangeOf(parseMoney(m[1]), parseMoney(m[2]), m[0]); ok {
				return s, true
			}
		}
		if m := salaryKRange.FindStringSubmatch(line); m != nil {
			if s, ok := rangeOf(parseMoney(m[1])*1000, parseMoney(m[2])*1000, m[0]); ok {
				return s, true
			}
		}
		for _, re := range []*regexp.Regexp{salaryLabel, salarySingle} {
			if m := re.FindStringSubmatch(line); m != nil {
				if v := parseMoney(m[1]); v >= salaryFloor {
					return Salary{Min: v, Raw: m[0]}, true
				}
			}
		}
	}
	return Salary{}, false
}

func rangeOf(a, b float64, raw string) (Salary, bool) {
	if a < salaryFloor || b < salaryFloor {
		return Salary{}, false
	}
	return Salary{Min: min(a, b), Max: max(a, b), Raw: raw}, true
}

func parseMoney(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
