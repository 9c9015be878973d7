package intake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/doctext"
	"github.com/sells-group/jobpipe/internal/source"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// DefaultDays is the active window given to an imported tenant.
const DefaultDays = 20

// Library file names.
const (
	PastedResume   = "pasted_resume.md"
	UploadedResume = "uploaded_resume.md"
	SupplementFile = "discovery_supplement.md"
	PastedCover    = "pasted_cover_letter.md"
	UploadedCover  = "uploaded_cover_letter.md"
)

// ErrExists is returned when the tenant already exists and force is off.
var ErrExists = eris.New("intake: tenant already exists")

// Result summarizes an import.
type Result struct {
	Slug         string
	Dir          string
	Resumes      []string
	CoverLetters []string
	Lifecycle    *tenant.Lifecycle
}

// Importer materializes onboarding payloads into tenant directories.
type Importer struct {
	Manager   *tenant.Manager
	Extractor doctext.Extractor
	Now       func() time.Time
}

// NewImporter creates an importer for the tenant store.
func NewImporter(m *tenant.Manager, ex doctext.Extractor) *Importer {
	return &Importer{Manager: m, Extractor: ex, Now: time.Now}
}

// Import writes p into a new tenant directory. An existing tenant is
// rewritten only when force is set; its lifecycle is kept.
func (im *Importer) Import(ctx context.Context, p *Payload, force bool) (*Result, error) {
	slug := tenant.Slugify(p.Name())
	if slug == "" {
		return nil, eris.Wrap(ErrInvalid, "intake: empty candidate name")
	}
	if im.Manager.Exists(slug) && !force {
		return nil, eris.Wrapf(ErrExists, "intake: %s (use --force to overwrite)", slug)
	}

	dir := filepath.Join(im.Manager.Root(), slug)
	log := zap.L().With(zap.String("tenant", slug))
	res := &Result{Slug: slug, Dir: dir}

	for _, sub := range []string{tenant.LedgerDir, tenant.JDsDir, tenant.PostingsDir, tenant.OutputDir, tenant.ResumesDir, tenant.CoverLettersDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, eris.Wrapf(err, "intake: mkdir %s", sub)
		}
	}

	if err := writeOnboarding(dir, p); err != nil {
		return nil, err
	}

	resumeBin := im.saveBinary(log, dir, p.resumeFileName(), p.ResumeFileData)
	coverBin := im.saveBinary(log, dir, p.coverLetterFileName(), p.CoverLetterFileData)

	resumes := []libEntry{}
	if text := strings.TrimSpace(p.ResumeText); text != "" {
		resumes = append(resumes, libEntry{PastedResume, text})
	}
	if text := im.extract(ctx, log, resumeBin); text != "" {
		resumes = append(resumes, libEntry{UploadedResume, text})
	}
	if len(resumes) > 0 && !p.Discovery.Empty() {
		resumes = append(resumes, libEntry{SupplementFile, DiscoverySupplement(p)})
	}

	covers := []libEntry{}
	if text := strings.TrimSpace(p.CoverLetterText); text != "" {
		covers = append(covers, libEntry{PastedCover, text})
	}
	if text := im.extract(ctx, log, coverBin); text != "" {
		covers = append(covers, libEntry{UploadedCover, text})
	}

	var err error
	if res.Resumes, err = writeLibrary(dir, tenant.ResumesDir, tenant.BaseResumeFile, resumes); err != nil {
		return nil, err
	}
	if res.CoverLetters, err = writeLibrary(dir, tenant.CoverLettersDir, tenant.BaseCoverFile, covers); err != nil {
		return nil, err
	}
	if len(resumes) == 0 {
		log.Warn("intake: no resume provided, tailoring will fail until one is added")
	}
	if len(covers) == 0 {
		log.Info("intake: no cover letter provided, letters will be written without a voice reference")
	}

	if !p.Discovery.Empty() || strings.TrimSpace(p.PrefNotes) != "" {
		notes := DiscoveryNotes(p, im.Now())
		if err := tenant.WriteFile(filepath.Join(dir, tenant.DiscoveryFile), []byte(notes)); err != nil {
			return nil, err
		}
	}

	cfg := BuildConfig(p)
	if err := tenant.SaveConfig(dir, cfg); err != nil {
		return nil, err
	}

	lc, err := tenant.LoadLifecycle(dir)
	if err != nil || lc == nil {
		if err != nil {
			log.Warn("intake: replacing unreadable lifecycle", zap.Error(err))
		}
		lc = tenant.NewLifecycle(im.Now(), DefaultDays)
		if err := tenant.SaveLifecycle(dir, lc); err != nil {
			return nil, err
		}
	}
	res.Lifecycle = lc

	log.Info("intake: tenant imported",
		zap.Strings("resumes", res.Resumes),
		zap.Strings("cover_letters", res.CoverLetters),
		zap.Time("expires_at", lc.ExpiresAt),
	)
	return res, nil
}

type libEntry struct {
	name, text string
}

// writeLibrary writes each entry under sub and copies the preferred one to
// base. Pasted text wins over extracted text.
func writeLibrary(dir, sub, base string, entries []libEntry) ([]string, error) {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := tenant.WriteFile(filepath.Join(dir, sub, e.name), []byte(e.text)); err != nil {
			return nil, err
		}
		names = append(names, e.name)
	}
	if len(entries) > 0 {
		if err := tenant.WriteFile(filepath.Join(dir, base), []byte(entries[0].text)); err != nil {
			return nil, err
		}
	}
	return names, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeName replaces characters outside [a-zA-Z0-9._-] with underscores.
func SafeName(name string) string {
	return unsafeName.ReplaceAllString(filepath.Base(name), "_")
}

// saveBinary decodes a base64 upload into dir and returns its path. Decode
// and write failures are logged and yield "".
func (im *Importer) saveBinary(log *zap.Logger, dir, name, data string) string {
	if name == "" || data == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		log.Warn("intake: cannot decode upload", zap.String("file", name), zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, SafeName(name))
	if err := tenant.WriteFile(path, raw); err != nil {
		log.Warn("intake: cannot save upload", zap.String("file", name), zap.Error(err))
		return ""
	}
	log.Info("intake: saved upload", zap.String("file", filepath.Base(path)), zap.Int("bytes", len(raw)))
	return path
}

func (im *Importer) extract(ctx context.Context, log *zap.Logger, path string) string {
	if path == "" || im.Extractor == nil {
		return ""
	}
	text, err := im.Extractor.ExtractText(ctx, path)
	if err != nil {
		log.Warn("intake: text extraction failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func writeOnboarding(dir string, p *Payload) error {
	stripped := *p
	stripped.ResumeFileData = ""
	stripped.CoverLetterFileData = ""
	data, err := json.MarshalIndent(stripped, "", "  ")
	if err != nil {
		return eris.Wrap(err, "intake: encode onboarding")
	}
	return tenant.WriteFile(filepath.Join(dir, tenant.OnboardingFile), append(data, '\n'))
}

var salaryDigits = regexp.MustCompile(`\d+`)

// ParseSalary returns the first number in s, ignoring thousands separators.
func ParseSalary(s string) float64 {
	m := salaryDigits.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return n
}

// BuildConfig derives a tenant config from the payload.
func BuildConfig(p *Payload) *tenant.Config {
	locations := p.Locations
	if len(locations) == 0 {
		loc := strings.TrimSpace(p.Location)
		if loc == "" {
			loc = "Canada"
		}
		locations = []string{loc}
	}

	return &tenant.Config{
		Candidate: tenant.Candidate{
			FirstName: strings.TrimSpace(p.FirstName),
			LastName:  strings.TrimSpace(p.LastName),
			Email:     p.Email,
			Location:  p.Location,
		},
		Search: tenant.Search{
			Queries:         p.Roles,
			Locations:       locations,
			RemoteOnly:      strings.EqualFold(p.WorkArrangement, "remote"),
			DatePosted:      "week",
			ResultsPerQuery: 10,
		},
		Sources: source.DefaultSettings(),
		Filters: tenant.Filters{
			ExcludeCompanies: p.Exclude,
			MinSalary:        ParseSalary(string(p.MinSalary)),
		},
		Relevance: BuildRelevance(p.Roles, p.Discovery.Certs),
		Notifications: tenant.Notifications{
			Email: tenant.Email{Enabled: true, Recipient: p.Email},
		},
	}
}
