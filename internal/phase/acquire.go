package phase

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/screen"
	"github.com/sells-group/jobpipe/internal/source"
	"github.com/sells-group/jobpipe/internal/tenant"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var jdTemplate = template.Must(template.ParseFS(templateFS, "templates/jd.md.tmpl"))

// Ledger meta keys.
const (
	MetaReason     = "reason"
	MetaRelevance  = "relevance"
	MetaDir        = "dir"
	MetaConfidence = "confidence"
)

// Rejection reasons recorded in the acquisition ledger.
const (
	ReasonExpiredURL   = "expired_url"
	ReasonLowRelevance = "low_relevance"
)

// URLChecker decides whether an apply URL still leads to an open posting.
type URLChecker interface {
	Check(ctx context.Context, rawURL string) (bool, string)
}

// AcquireOptions are per-run acquisition switches.
type AcquireOptions struct {
	DryRun     bool
	NoURLCheck bool
	// Source restricts the run to one source by name.
	Source string
}

// Acquisition fetches postings from every enabled source, screens them and
// saves the survivors.
type Acquisition struct {
	Sources *source.Registry
	Keys    source.Keys
	Checker URLChecker
	Now     func() time.Time
}

// Run executes acquisition for one tenant against its acquisition ledger.
func (a *Acquisition) Run(ctx context.Context, t *tenant.Tenant, led ledger.Ledger, opts AcquireOptions, log *zap.Logger) model.PhaseResult {
	if log == nil {
		log = zap.L()
	}
	var skips []model.SourceSkip
	fetched := map[string]int{}

	filter := screen.NewFilter(t.Config.Filters, t.Config.Candidate.Location)
	r := &Runner[*model.Posting]{
		Name:    model.PhaseAcquisition,
		Ledger:  led,
		Filters: []Filter[*model.Posting]{filter.Match},
		Limit:   t.Config.Search.MaxNewPerRun,
		DryRun:  opts.DryRun,
		Log:     log,
	}

	checker := a.Checker
	if opts.NoURLCheck {
		checker = nil
	}
	w := &acquireWorker{tenant: t, checker: checker, now: a.now}

	res := r.Run(ctx, a.candidates(ctx, t, opts, log, &skips, fetched), w)
	res.SkippedSources = append(res.SkippedSources, skips...)
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["fetched"] = fetched
	return res
}

func (a *Acquisition) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// candidates lazily walks the enabled sources in registry order. Source
// failures are recorded in skips and never end the sequence.
func (a *Acquisition) candidates(ctx context.Context, t *tenant.Tenant, opts AcquireOptions, log *zap.Logger, skips *[]model.SourceSkip, fetched map[string]int) iter.Seq[Candidate[*model.Posting]] {
	keys := source.ResolveKeys(t.Config.APIKeys, a.Keys)
	return func(yield func(Candidate[*model.Posting]) bool) {
		for _, src := range a.Sources.All() {
			name := src.Name()
			if opts.Source != "" && opts.Source != name {
				continue
			}
			if !t.Config.SourceEnabled(name) {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			srcLog := log.With(zap.String("source", name))
			postings, err := src.Fetch(ctx, source.Request{
				Search:   t.Config.Search,
				Settings: t.Config.Source(name),
				Keys:     keys,
			})
			fetched[name] = len(postings)
			if err != nil {
				reason := err.Error()
				if errors.Is(err, source.ErrMissingCredentials) {
					reason = "missing credentials"
				}
				*skips = append(*skips, model.SourceSkip{Source: name, Reason: reason})
				srcLog.Warn("acquire: source skipped",
					zap.String("scope", string(resilience.ScopeOf(err))),
					zap.Int("kept", len(postings)),
					zap.Error(err),
				)
			} else {
				srcLog.Info("acquire: source fetched", zap.Int("postings", len(postings)))
			}

			for i := range postings {
				p := &postings[i]
				p.Fingerprint = ledger.Fingerprint(p.Title, p.Company)
				if p.Source == "" {
					p.Source = name
				}
				c := Candidate[*model.Posting]{
					Fingerprint: p.Fingerprint,
					Origin:      name,
					Label:       p.Title + " @ " + p.Company,
					Item:        p,
				}
				if !yield(c) {
					return
				}
			}
		}
	}
}

type acquireWorker struct {
	tenant  *tenant.Tenant
	checker URLChecker
	now     func() time.Time
}

func (w *acquireWorker) Process(ctx context.Context, c Candidate[*model.Posting]) (Outcome, error) {
	p := c.Item
	if w.checker != nil && p.ApplyURL != "" {
		if alive, why := w.checker.Check(ctx, p.ApplyURL); !alive {
			return Outcome{
				Status: ledger.StatusRejected,
				Meta:   map[string]string{MetaReason: ReasonExpiredURL, "detail": why},
			}, nil
		}
	}

	rel := w.tenant.Config.Relevance
	score, breakdown := screen.Score(p.Title, p.Title+" "+p.Description, rel)
	p.Relevance = score
	rounded := strconv.FormatFloat(score, 'f', 2, 64)
	if score < rel.MinScore {
		return Outcome{
			Status: ledger.StatusRejected,
			Meta:   map[string]string{MetaReason: ReasonLowRelevance, MetaRelevance: rounded},
		}, nil
	}

	if p.FetchedAt.IsZero() {
		p.FetchedAt = w.now().UTC()
	}
	if err := SavePosting(w.tenant, p); err != nil {
		return Outcome{}, err
	}
	if err := writeJD(w.tenant, p, relevanceLine(score, breakdown, rel)); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status: ledger.StatusAccepted,
		Meta:   map[string]string{MetaRelevance: rounded},
	}, nil
}

// PostingPath returns where a posting is persisted.
func PostingPath(t *tenant.Tenant, fingerprint string) string {
	return t.Path(tenant.PostingsDir, fingerprint+".json")
}

// SavePosting writes postings/<fp>.json.
func SavePosting(t *tenant.Tenant, p *model.Posting) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return eris.Wrap(err, "acquire: encode posting")
	}
	return tenant.WriteFile(PostingPath(t, p.Fingerprint), append(data, '\n'))
}

// LoadPosting reads postings/<fp>.json.
func LoadPosting(t *tenant.Tenant, fingerprint string) (*model.Posting, error) {
	data, err := os.ReadFile(PostingPath(t, fingerprint))
	if err != nil {
		return nil, eris.Wrapf(err, "phase: load posting %s", fingerprint)
	}
	var p model.Posting
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "phase: decode posting %s", fingerprint)
	}
	return &p, nil
}

// JDFileName is the markdown file name of a posting under JDs/.
func JDFileName(p *model.Posting) string {
	return model.FileStem(p.Company) + "_" + model.FileStem(p.Title) + ".md"
}

type highlight struct {
	Name  string
	Items []string
}

func writeJD(t *tenant.Tenant, p *model.Posting, relevance string) error {
	var hl []highlight
	for _, name := range []string{"Qualifications", "Responsibilities", "Benefits"} {
		if items := p.Highlights[name]; len(items) > 0 {
			hl = append(hl, highlight{Name: name, Items: items})
		}
	}

	var buf bytes.Buffer
	err := jdTemplate.Execute(&buf, struct {
		Posting    *model.Posting
		Relevance  string
		Highlights []highlight
		Fetched    string
	}{p, relevance, hl, p.FetchedAt.UTC().Format("2006-01-02 15:04 UTC")})
	if err != nil {
		return eris.Wrap(err, "acquire: render jd")
	}
	return tenant.WriteFile(filepath.Join(t.Dir, tenant.JDsDir, JDFileName(p)), buf.Bytes())
}

// relevanceLine formats the score with each area's unweighted percentage.
func relevanceLine(score float64, breakdown map[string]float64, rel tenant.Relevance) string {
	if len(rel.FocusAreas) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rel.FocusAreas))
	for _, area := range rel.FocusAreas {
		weight := area.Weight
		if weight == 0 {
			weight = 1
		}
		parts = append(parts, fmt.Sprintf("%s: %.0f%%", area.Name, breakdown[area.Name]/weight*100))
	}
	return fmt.Sprintf("%.0f%% (%s)", score*100, strings.Join(parts, ", "))
}
