package ai

import (
	"embed"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Document names, also used in usage logs.
const (
	DocResume      = "resume"
	DocCoverLetter = "cover_letter"
	DocReport      = "report"
)

// Materials is a candidate's reference text, loaded once per tenant.
type Materials struct {
	Candidate      string
	ResumeLibrary  string
	BaseResume     string
	DiscoveryNotes string
	CoverLibrary   string
}

// Job is the target posting as shown to the model.
type Job struct {
	Company  string
	Role     string
	Location string
	// JD is the full job description markdown.
	JD string
}

type promptData struct {
	Candidate    string
	Job          Job
	Tailored     string
	HasDiscovery bool
	HasVoice     bool
}

func render(name string, data promptData) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", eris.Wrapf(err, "ai: render %s prompt", name)
	}
	return b.String(), nil
}

// ResumePrompt builds the tailored resume request. The resume library and
// discovery notes go in the system prompt.
func ResumePrompt(m Materials, job Job) (Prompt, error) {
	var system strings.Builder
	system.WriteString("RESUME LIBRARY\n\n")
	system.WriteString(m.ResumeLibrary)
	if m.DiscoveryNotes != "" {
		system.WriteString("\n\nDISCOVERY NOTES\n\n")
		system.WriteString(m.DiscoveryNotes)
	}

	user, err := render("resume.tmpl", promptData{
		Candidate:    m.Candidate,
		Job:          job,
		HasDiscovery: m.DiscoveryNotes != "",
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Document: DocResume, System: system.String(), User: user}, nil
}

// CoverLetterPrompt builds the cover letter request. The candidate's past
// letters, when any, are the system prompt.
func CoverLetterPrompt(m Materials, job Job, tailored string) (Prompt, error) {
	var system string
	if m.CoverLibrary != "" {
		system = "VOICE REFERENCE\n\n" + m.CoverLibrary
	}

	user, err := render("cover_letter.tmpl", promptData{
		Candidate: m.Candidate,
		Job:       job,
		Tailored:  tailored,
		HasVoice:  m.CoverLibrary != "",
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Document: DocCoverLetter, System: system, User: user}, nil
}

// ReportPrompt builds the match report request.
func ReportPrompt(m Materials, job Job, tailored string) (Prompt, error) {
	base := m.BaseResume
	if base == "" {
		base = m.ResumeLibrary
	}

	user, err := render("report.tmpl", promptData{
		Candidate: m.Candidate,
		Job:       job,
		Tailored:  tailored,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Document: DocReport, System: "BASE RESUME\n\n" + base, User: user}, nil
}
