package ai

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects how aggressively Sanitize rewrites text.
type Mode int

const (
	// ModeFull rewrites banned words and phrases, dashes and whitespace.
	// Used for resumes and cover letters.
	ModeFull Mode = iota
	// ModeLight only normalizes dashes and whitespace. Used for reports.
	ModeLight
)

// bannedWords maps each inflected form to its plain replacement.
var bannedWords = map[string]string{
	"leveraged":     "used",
	"leveraging":    "using",
	"leverages":     "uses",
	"leverage":      "use",
	"utilized":      "used",
	"utilizing":     "using",
	"utilizes":      "uses",
	"utilize":       "use",
	"spearheaded":   "led",
	"spearheading":  "leading",
	"spearheads":    "leads",
	"spearhead":     "lead",
	"facilitated":   "coordinated",
	"facilitating":  "coordinating",
	"facilitates":   "coordinates",
	"facilitate":    "coordinate",
	"fostered":      "built",
	"fostering":     "building",
	"fosters":       "builds",
	"foster":        "build",
	"cultivated":    "developed",
	"cultivating":   "developing",
	"cultivates":    "develops",
	"cultivate":     "develop",
	"harnessed":     "used",
	"harnessing":    "using",
	"harnesses":     "uses",
	"harness":       "use",
	"championed":    "led",
	"championing":   "leading",
	"champions":     "leads",
	"champion":      "lead",
	"seamlessly":    "smoothly",
	"seamless":      "smooth",
	"robust":        "strong",
	"holistically":  "comprehensively",
	"holistic":      "comprehensive",
	"cutting-edge":  "modern",
	"best-in-class": "leading",
	"synergies":     "collaboration",
	"synergy":       "collaboration",
	"paradigms":     "approaches",
	"paradigm":      "approach",
}

var bannedWordRe = func() *regexp.Regexp {
	forms := make([]string, 0, len(bannedWords))
	for f := range bannedWords {
		forms = append(forms, regexp.QuoteMeta(f))
	}
	// Longest first so "leveraged" wins over "leverage".
	sort.Slice(forms, func(i, j int) bool {
		if len(forms[i]) != len(forms[j]) {
			return len(forms[i]) > len(forms[j])
		}
		return forms[i] < forms[j]
	})
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(forms, "|") + `)\b`)
}()

type phraseRule struct {
	re   *regexp.Regexp
	repl string
}

var bannedPhrases = []phraseRule{
	{regexp.MustCompile(`(?i)I am writing to express my (?:strong |keen )?interest in`), "I am applying for"},
	{regexp.MustCompile(`(?i)resonates deeply with`), "matches"},
	{regexp.MustCompile(`(?i)aligns perfectly with`), "matches"},
	{regexp.MustCompile(`(?i)I am (?:excited|thrilled|eager) (?:about|by) the opportunity to`), "I look forward to"},
	{regexp.MustCompile(`(?i)I would welcome the (?:opportunity|chance) to discuss`), "I am happy to discuss"},
	{regexp.MustCompile(`(?i)(?:a |the )?culture of (\w+)`), "$1"},
	{regexp.MustCompile(`(?i)in today'?s (?:\w+ )*?landscape`), ""},
	{regexp.MustCompile(`(?i)at the forefront of`), ""},
	{regexp.MustCompile(`(?i)(?:deep|strong) (?:understanding|passion) (?:of|for)`), "experience with"},
	{regexp.MustCompile(`(?i)actionable (insights?|recommendations?|deliverables?)`), "clear $1"},
	{regexp.MustCompile(`(?i)well-?versed in`), "experienced with"},
	{regexp.MustCompile(`(?i)uniquely positioned to`), "prepared to"},
	{regexp.MustCompile(`(?i)well-?positioned to`), "prepared to"},
}

var (
	leadingDash    = regexp.MustCompile(`(?m)^—\s*`)
	dashReplacer   = strings.NewReplacer(" — ", " - ", "— ", " - ", " —", " -", "—", " - ")
	multiSpace     = regexp.MustCompile(`([^\n]) {2,}`)
	trailingSpace  = regexp.MustCompile(`(?m) +$`)
	excessNewlines = regexp.MustCompile(`\n{4,}`)
)

// Sanitize strips stock AI phrasing from generated text.
func Sanitize(text string, mode Mode) string {
	if text == "" {
		return text
	}

	text = leadingDash.ReplaceAllString(text, "- ")
	text = dashReplacer.Replace(text)

	if mode == ModeFull {
		text = bannedWordRe.ReplaceAllStringFunc(text, func(m string) string {
			return matchCase(m, bannedWords[strings.ToLower(m)])
		})
		for _, p := range bannedPhrases {
			text = p.re.ReplaceAllString(text, p.repl)
		}
	}

	text = multiSpace.ReplaceAllString(text, "$1 ")
	text = trailingSpace.ReplaceAllString(text, "")
	text = excessNewlines.ReplaceAllString(text, "\n\n\n")
	return text
}

// matchCase applies the capitalization of original to replacement: all
// caps stays all caps and a capitalized word stays capitalized.
func matchCase(original, replacement string) string {
	if original == "" || replacement == "" {
		return replacement
	}
	if isUpper(original) {
		return strings.ToUpper(replacement)
	}
	first, size := utf8.DecodeRuneInString(original)
	if unicode.IsUpper(first) && original[size:] == strings.ToLower(original[size:]) {
		r, n := utf8.DecodeRuneInString(replacement)
		return string(unicode.ToUpper(r)) + replacement[n:]
	}
	return replacement
}

func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
