package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/ai"
	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/render"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// ErrNoResume is returned when a tenant has no resume to tailor from.
var ErrNoResume = eris.New("transform: no resume on file")

const stagingSuffix = ".tmp"

// TransformOptions are per-run transformation switches.
type TransformOptions struct {
	DryRun bool
	// Limit caps items this run together with the lifecycle's daily cap.
	Limit int
	// JDGlob restricts the run to postings whose JD file name matches.
	JDGlob string
}

// Transformation tailors accepted postings into application packages.
type Transformation struct {
	Generator ai.Generator
	// Renderer converts markdown to DOCX. Nil disables DOCX output.
	Renderer render.Renderer
	Budget   resilience.Budget
	Now      func() time.Time
}

// Run transforms accepted postings not yet in the transformation ledger.
func (x *Transformation) Run(ctx context.Context, t *tenant.Tenant, set *ledger.Set, opts TransformOptions, log *zap.Logger) model.PhaseResult {
	if log == nil {
		log = zap.L()
	}
	entries, err := set.Acquisition.All(ctx)
	if err != nil {
		return Fatal(model.PhaseTransformation, err)
	}

	var filters []Filter[*model.Posting]
	if opts.JDGlob != "" {
		filters = append(filters, jdFilter(opts.JDGlob))
	}
	dailyCap := 0
	if t.Lifecycle != nil {
		dailyCap = t.Lifecycle.DailyItemCap
	}

	r := &Runner[*model.Posting]{
		Name:    model.PhaseTransformation,
		Ledger:  set.Transformation,
		Filters: filters,
		Limit:   capOf(dailyCap, opts.Limit),
		DryRun:  opts.DryRun,
		Log:     log,
	}

	w := &transformWorker{x: x, tenant: t, log: log}
	return r.Run(ctx, acceptedPostings(t, entries), w)
}

// capOf combines two limits where a non-positive value means unbounded.
func capOf(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

func acceptedPostings(t *tenant.Tenant, entries []ledger.Entry) iter.Seq[Candidate[*model.Posting]] {
	return func(yield func(Candidate[*model.Posting]) bool) {
		for _, e := range entries {
			if e.Status != ledger.StatusAccepted {
				continue
			}
			c := Candidate[*model.Posting]{Fingerprint: e.Fingerprint, Origin: e.Origin, Label: e.Fingerprint}
			p, err := LoadPosting(t, e.Fingerprint)
			if err != nil {
				c.Err = err
			} else {
				c.Item = p
				c.Label = p.Title + " @ " + p.Company
			}
			if !yield(c) {
				return
			}
		}
	}
}

// jdFilter matches the JD file name against a glob. A pattern without
// wildcards matches as a case-insensitive substring.
func jdFilter(pattern string) Filter[*model.Posting] {
	return func(p *model.Posting) (bool, string) {
		name := JDFileName(p)
		if strings.ContainsAny(pattern, "*?[") {
			if ok, _ := filepath.Match(pattern, name); ok {
				return true, ""
			}
			return false, "jd does not match " + pattern
		}
		if strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			return true, ""
		}
		return false, "jd does not match " + pattern
	}
}

type transformWorker struct {
	x      *Transformation
	tenant *tenant.Tenant
	log    *zap.Logger

	materials *ai.Materials
}

func (w *transformWorker) loadMaterials() (*ai.Materials, error) {
	if w.materials != nil {
		return w.materials, nil
	}
	m, err := LoadMaterials(w.tenant)
	if err != nil {
		return nil, err
	}
	w.materials = m
	return m, nil
}

func (w *transformWorker) Process(ctx context.Context, c Candidate[*model.Posting]) (Outcome, error) {
	m, err := w.loadMaterials()
	if err != nil {
		return Outcome{}, err
	}
	p := c.Item
	log := w.log.With(zap.String("fingerprint", c.Fingerprint), zap.String("item", c.Label))

	job := ai.Job{Company: p.Company, Role: p.Title, Location: p.Location, JD: w.jobText(p)}
	docs, err := w.generate(ctx, c.Fingerprint, *m, job)
	if err != nil {
		return Outcome{}, err
	}

	stem := w.artifactStem(p)
	staging := w.tenant.Path(tenant.OutputDir, stem+stagingSuffix)
	final := w.tenant.Path(tenant.OutputDir, stem)
	if err := os.RemoveAll(staging); err != nil {
		return Outcome{}, eris.Wrapf(err, "transform: clear staging %s", staging)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Outcome{}, eris.Wrapf(err, "transform: create staging %s", staging)
	}

	art, err := w.stage(ctx, log, staging, stem, p, docs)
	if err != nil {
		_ = os.RemoveAll(staging)
		return Outcome{}, err
	}
	if err := replaceDir(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return Outcome{}, eris.Wrapf(err, "transform: commit %s", stem)
	}

	log.Info("transform: package ready", zap.String("dir", stem), zap.Int("confidence", art.Confidence))
	return Outcome{
		Status: ledger.StatusComplete,
		Meta:   map[string]string{MetaDir: stem, MetaConfidence: strconv.Itoa(art.Confidence)},
	}, nil
}

// replaceDir moves staging to final. A package already at final belongs to
// this posting (see artifactStem) and was left by a run whose ledger commit
// failed, so it is replaced. It is restored if the move fails.
func replaceDir(staging, final string) error {
	prev := final + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return err
	}
	if err := os.Rename(final, prev); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.Rename(prev, final)
		return err
	}
	_ = os.RemoveAll(prev)
	return nil
}

type documents struct {
	resume, cover, report string
}

// generate makes the three model calls in order. Any failure fails the
// item as a whole.
func (w *transformWorker) generate(ctx context.Context, fp string, m ai.Materials, job ai.Job) (documents, error) {
	var d documents

	prompt, err := ai.ResumePrompt(m, job)
	if err != nil {
		return d, err
	}
	raw, err := w.call(ctx, fp, prompt)
	if err != nil {
		return d, err
	}
	d.resume = ai.Sanitize(ai.ResumeBody(raw), ai.ModeFull)

	if prompt, err = ai.CoverLetterPrompt(m, job, d.resume); err != nil {
		return d, err
	}
	if raw, err = w.call(ctx, fp, prompt); err != nil {
		return d, err
	}
	d.cover = ai.Sanitize(raw, ai.ModeFull)

	if prompt, err = ai.ReportPrompt(m, job, d.resume); err != nil {
		return d, err
	}
	if raw, err = w.call(ctx, fp, prompt); err != nil {
		return d, err
	}
	d.report = ai.Sanitize(raw, ai.ModeLight)
	return d, nil
}

func (w *transformWorker) call(ctx context.Context, fp string, p ai.Prompt) (string, error) {
	op := resilience.Op{
		Name:   "ai: " + p.Document,
		Scope:  resilience.ScopeItem,
		Fields: []zap.Field{zap.String("tenant", w.tenant.Slug), zap.String("fingerprint", fp)},
	}
	return resilience.Invoke(ctx, op, w.x.Budget, func(ctx context.Context) (string, error) {
		return w.x.Generator.Generate(ctx, p)
	})
}

// stage writes every document and the manifest into dir.
func (w *transformWorker) stage(ctx context.Context, log *zap.Logger, dir, stem string, p *model.Posting, d documents) (*model.Artifact, error) {
	prefix := model.FileStem(w.tenant.Config.Candidate.Name()) + "_" + stem
	files := model.ArtifactFiles{
		ResumeMD:      prefix + "_Resume.md",
		CoverLetterMD: prefix + "_CoverLetter.md",
		ReportMD:      prefix + "_MatchReport.md",
	}
	for name, text := range map[string]string{files.ResumeMD: d.resume, files.CoverLetterMD: d.cover, files.ReportMD: d.report} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text+"\n"), 0o644); err != nil {
			return nil, eris.Wrapf(err, "transform: write %s", name)
		}
	}

	files.ResumeDOCX = w.docx(ctx, log, dir, files.ResumeMD)
	files.CoverLetterDOCX = w.docx(ctx, log, dir, files.CoverLetterMD)

	art := &model.Artifact{
		Fingerprint: p.Fingerprint,
		Company:     p.Company,
		Role:        p.Title,
		Location:    p.Location,
		Salary:      p.SalaryLabel(),
		ApplyURL:    p.ApplyURL,
		Confidence:  ai.ParseConfidence(d.report),
		Dir:         stem,
		Files:       files,
		CreatedAt:   w.now().UTC(),
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "transform: encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, model.ManifestName), append(data, '\n'), 0o644); err != nil {
		return nil, eris.Wrap(err, "transform: write manifest")
	}
	return art, nil
}

// docx renders one document and returns its file name, or "" when the
// format was skipped. Rendering never fails the item.
func (w *transformWorker) docx(ctx context.Context, log *zap.Logger, dir, mdName string) string {
	if w.x.Renderer == nil {
		return ""
	}
	docxName := strings.TrimSuffix(mdName, ".md") + ".docx"
	err := w.x.Renderer.DOCX(ctx, filepath.Join(dir, mdName), filepath.Join(dir, docxName))
	switch {
	case err == nil:
		return docxName
	case errors.Is(err, render.ErrUnsupported):
		log.Debug("transform: docx skipped, converter missing", zap.String("file", mdName))
	default:
		log.Warn("transform: docx render failed", zap.String("file", mdName), zap.Error(err))
	}
	_ = os.Remove(filepath.Join(dir, docxName))
	return ""
}

func (w *transformWorker) now() time.Time {
	if w.x.Now != nil {
		return w.x.Now()
	}
	return time.Now()
}

// artifactStem names the package directory. A name already taken by a
// different posting gets the fingerprint appended.
func (w *transformWorker) artifactStem(p *model.Posting) string {
	stem := model.FileStem(p.Company + " " + p.Title)
	if stem == "" {
		stem = p.Fingerprint
	}
	man, err := LoadArtifact(w.tenant, stem)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && man.Fingerprint == p.Fingerprint) {
		return stem
	}
	return stem + "_" + p.Fingerprint[:min(8, len(p.Fingerprint))]
}

// jobText prefers the saved JD markdown over the raw description.
func (w *transformWorker) jobText(p *model.Posting) string {
	if data, err := os.ReadFile(w.tenant.Path(tenant.JDsDir, JDFileName(p))); err == nil {
		return string(data)
	}
	return p.Description
}

// LoadArtifact reads output/<dir>/manifest.json.
func LoadArtifact(t *tenant.Tenant, dir string) (*model.Artifact, error) {
	data, err := os.ReadFile(t.Path(tenant.OutputDir, dir, model.ManifestName))
	if err != nil {
		return nil, err
	}
	var a model.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "phase: decode manifest %s", dir)
	}
	return &a, nil
}

// LoadMaterials reads a tenant's resume library, base resume, discovery
// notes and cover letter library.
func LoadMaterials(t *tenant.Tenant) (*ai.Materials, error) {
	m := &ai.Materials{Candidate: t.Config.Candidate.Name()}

	resumes, err := readLibrary(t.Path(tenant.ResumesDir))
	if err != nil {
		return nil, err
	}
	base := readOptional(t.Path(tenant.BaseResumeFile))
	if len(resumes) == 0 && base != "" {
		resumes = []libraryFile{{name: tenant.BaseResumeFile, text: base}}
	}
	if len(resumes) == 0 {
		return nil, resilience.Escalate(ErrNoResume, resilience.ScopeTenant)
	}

	blocks := make([]string, len(resumes))
	for i, f := range resumes {
		blocks[i] = fmt.Sprintf("=== RESUME FILE: %s ===\n%s\n=== END FILE ===", f.name, f.text)
	}
	m.ResumeLibrary = strings.Join(blocks, "\n\n")
	m.BaseResume = base
	if m.BaseResume == "" {
		m.BaseResume = resumes[0].text
	}
	m.DiscoveryNotes = readOptional(t.Path(tenant.DiscoveryFile))

	covers, err := readLibrary(t.Path(tenant.CoverLettersDir))
	if err != nil {
		return nil, err
	}
	if len(covers) == 0 {
		if c := readOptional(t.Path(tenant.BaseCoverFile)); c != "" {
			covers = []libraryFile{{name: tenant.BaseCoverFile, text: c}}
		}
	}
	texts := make([]string, len(covers))
	for i, f := range covers {
		texts[i] = f.text
	}
	m.CoverLibrary = strings.Join(texts, "\n\n---\n\n")
	return m, nil
}

type libraryFile struct {
	name, text string
}

// readLibrary returns the non-empty markdown files of dir sorted by name.
// A missing directory is an empty library.
func readLibrary(dir string) ([]libraryFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "transform: read library %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []libraryFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		text := readOptional(filepath.Join(dir, e.Name()))
		if text != "" {
			out = append(out, libraryFile{name: e.Name(), text: text})
		}
	}
	return out, nil
}

func readOptional(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
