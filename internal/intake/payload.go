// Package intake turns an onboarding form submission into a tenant
// directory.
package intake

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// ErrInvalid is returned for a payload that fails validation.
var ErrInvalid = eris.New("intake: invalid payload")

// Payload is the onboarding form submission.
type Payload struct {
	FirstName           string    `json:"firstName" validate:"required"`
	LastName            string    `json:"lastName" validate:"required"`
	Email               string    `json:"email" validate:"required,email"`
	Location            string    `json:"location,omitempty"`
	Roles               []string  `json:"roles" validate:"min=1,dive,required"`
	Locations           []string  `json:"locations,omitempty"`
	WorkArrangement     string    `json:"workArrangement,omitempty"`
	MinSalary           flexText  `json:"minSalary,omitempty"`
	Exclude             []string  `json:"exclude,omitempty"`
	ResumeText          string    `json:"resumeText,omitempty"`
	ResumeFile          string    `json:"resumeFile,omitempty"`
	ResumeFileName      string    `json:"resumeFileName,omitempty"`
	ResumeFileData      string    `json:"resumeFileData,omitempty"`
	CoverLetterText     string    `json:"coverLetterText,omitempty"`
	CoverLetterFile     string    `json:"coverLetterFile,omitempty"`
	CoverLetterFileName string    `json:"coverLetterFileName,omitempty"`
	CoverLetterFileData string    `json:"coverLetterFileData,omitempty"`
	Discovery           Discovery `json:"discovery,omitempty"`
	PrefNotes           string    `json:"prefNotes,omitempty"`
	SubmittedAt         string    `json:"submittedAt,omitempty"`
}

// Discovery holds the candidate's self-reported achievements.
type Discovery struct {
	TeamSize   string `json:"teamSize,omitempty"`
	Budget     string `json:"budget,omitempty"`
	Metrics    string `json:"metrics,omitempty"`
	Certs      string `json:"certs,omitempty"`
	Challenge  string `json:"challenge,omitempty"`
	Tools      string `json:"tools,omitempty"`
	Industries string `json:"industries,omitempty"`
	Hidden     string `json:"hidden,omitempty"`
}

// Empty reports whether no discovery question was answered.
func (d Discovery) Empty() bool {
	for _, v := range []string{d.TeamSize, d.Budget, d.Metrics, d.Certs, d.Challenge, d.Tools, d.Industries, d.Hidden} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// flexText accepts a JSON string or number.
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexText(s)
		return nil
	}
	*f = flexText(bytes.TrimSpace(b))
	return nil
}

// Name returns the candidate's full name.
func (p *Payload) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Payload) resumeFileName() string {
	if p.ResumeFileName != "" {
		return p.ResumeFileName
	}
	return p.ResumeFile
}

func (p *Payload) coverLetterFileName() string {
	if p.CoverLetterFileName != "" {
		return p.CoverLetterFileName
	}
	return p.CoverLetterFile
}

// Parse validates data against the onboarding JSON Schema, decodes it and
// checks field constraints.
func Parse(data []byte) (*Payload, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, eris.Wrap(ErrInvalid, "intake: "+err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, eris.Wrapf(ErrInvalid, "intake: %s", strings.Join(msgs, "; "))
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(ErrInvalid, "intake: decode: %v", err)
	}
	if err := validator.New().Struct(&p); err != nil {
		return nil, eris.Wrapf(ErrInvalid, "intake: %v", err)
	}
	return &p, nil
}
