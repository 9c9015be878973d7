package screen

import (
	"regexp"
	"strings"
)

var provinces = []string{
	"Alberta", "British Columbia", "Manitoba", "New Brunswick",
	"Newfoundland and Labrador", "Northwest Territories", "Nova Scotia",
	"Nunavut", "Ontario", "Prince Edward Island", "Quebec", "Saskatchewan",
	"Yukon",
}

type abbreviation struct {
	re       *regexp.Regexp
	province string
}

var provinceAbbreviations = func() []abbreviation {
	pairs := [][2]string{
		{"AB", "Alberta"}, {"BC", "British Columbia"}, {"MB", "Manitoba"},
		{"NB", "New Brunswick"}, {"NL", "Newfoundland and Labrador"},
		{"NT", "Northwest Territories"}, {"NS", "Nova Scotia"}, {"NU", "Nunavut"},
		{"ON", "Ontario"}, {"PE", "Prince Edward Island"}, {"QC", "Quebec"},
		{"SK", "Saskatchewan"}, {"YT", "Yukon"},
	}
	out := make([]abbreviation, len(pairs))
	for i, p := range pairs {
		out[i] = abbreviation{re: regexp.MustCompile(`\b` + p[0] + `\b`), province: p[1]}
	}
	return out
}()

// Ordered so longer, more specific aliases win.
var provinceAliases = [][2]string{
	{"Greater Toronto", "Ontario"}, {"GTA", "Ontario"}, {"Toronto", "Ontario"},
	{"Ottawa", "Ontario"}, {"Mississauga", "Ontario"}, {"Hamilton", "Ontario"},
	{"Kitchener", "Ontario"}, {"Waterloo", "Ontario"}, {"London, ON", "Ontario"},
	{"Greater Vancouver", "British Columbia"}, {"Vancouver", "British Columbia"},
	{"Victoria", "British Columbia"}, {"Surrey", "British Columbia"},
	{"Calgary", "Alberta"}, {"Edmonton", "Alberta"},
	{"Montreal", "Quebec"}, {"Montréal", "Quebec"}, {"Quebec City", "Quebec"},
	{"Winnipeg", "Manitoba"},
	{"Saskatoon", "Saskatchewan"}, {"Regina", "Saskatchewan"},
	{"Halifax", "Nova Scotia"},
	{"Fredericton", "New Brunswick"}, {"Saint John", "New Brunswick"},
	{"St. John's", "Newfoundland and Labrador"},
	{"Charlottetown", "Prince Edward Island"},
	{"Whitehorse", "Yukon"}, {"Yellowknife", "Northwest Territories"},
	{"Iqaluit", "Nunavut"},
}

// Province derives a Canadian province from a free-form location: full
// names first, then two-letter codes, then city and region aliases.
// It returns "" when nothing matches.
func Province(location string) string {
	if location == "" {
		return ""
	}
	lower := strings.ToLower(location)

	for _, p := range provinces {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
	}
	for _, a := range provinceAbbreviations {
		if a.re.MatchString(location) {
			return a.province
		}
	}
	for _, a := range provinceAliases {
		if strings.Contains(lower, strings.ToLower(a[0])) {
			return a[1]
		}
	}
	return ""
}
