package model

import "time"

// ArtifactFiles names the documents of one tailored package, relative to
// the artifact directory. Empty means the file was not produced.
type ArtifactFiles struct {
	ResumeMD        string `json:"resume_md"`
	ResumeDOCX      string `json:"resume_docx,omitempty"`
	CoverLetterMD   string `json:"cover_letter_md"`
	CoverLetterDOCX string `json:"cover_letter_docx,omitempty"`
	ReportMD        string `json:"report_md"`
}

// Artifact is the manifest of a tailored application package. It links back
// to the originating posting through Fingerprint.
type Artifact struct {
	Fingerprint string        `json:"fingerprint"`
	Company     string        `json:"company"`
	Role        string        `json:"role"`
	Location    string        `json:"location,omitempty"`
	Salary      string        `json:"salary,omitempty"`
	ApplyURL    string        `json:"apply_url,omitempty"`
	Confidence  int           `json:"confidence"` // -1 when the report carried no score
	Dir         string        `json:"dir"`
	Files       ArtifactFiles `json:"files"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ManifestName is the artifact manifest file name inside an artifact dir.
const ManifestName = "manifest.json"
