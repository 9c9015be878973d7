package phase

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/mail"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// DeliverOptions are per-run delivery switches.
type DeliverOptions struct {
	DryRun bool
	// NoEmail renders digest.html instead of sending. Nothing is ledgered.
	NoEmail bool
	// Limit caps packages per digest. Zero means unlimited.
	Limit int
	// MinMatch drops packages whose confidence is below it. Unknown
	// confidence never passes a positive threshold.
	MinMatch int
	// Since drops packages created before it.
	Since time.Time
}

// Delivery sends each tenant a digest of its new packages.
type Delivery struct {
	// Mail is the process-wide account. Tenant settings take precedence.
	Mail      mail.Settings
	Transport func(mail.Settings) mail.Transport
	// Tenants receives the delivered count after a successful send.
	Tenants *tenant.Manager
	Now     func() time.Time
}

// Run delivers completed packages not yet in the delivery ledger.
func (d *Delivery) Run(ctx context.Context, t *tenant.Tenant, set *ledger.Set, opts DeliverOptions, log *zap.Logger) model.PhaseResult {
	if log == nil {
		log = zap.L()
	}
	email := t.Config.Notifications.Email
	if !email.Enabled {
		return Skipped(model.PhaseDelivery, "notifications disabled")
	}
	if email.Recipient == "" {
		return Skipped(model.PhaseDelivery, "no recipient")
	}

	entries, err := set.Transformation.All(ctx)
	if err != nil {
		return Fatal(model.PhaseDelivery, err)
	}

	var filters []Filter[*model.Artifact]
	if !opts.Since.IsZero() {
		since := opts.Since
		filters = append(filters, func(a *model.Artifact) (bool, string) {
			if a.CreatedAt.Before(since) {
				return false, "created before " + since.Format(time.DateOnly)
			}
			return true, ""
		})
	}
	if opts.MinMatch > 0 {
		threshold := opts.MinMatch
		filters = append(filters, func(a *model.Artifact) (bool, string) {
			if a.Confidence < threshold {
				return false, "below minimum match"
			}
			return true, ""
		})
	}

	w := &deliverWorker{d: d, tenant: t, settings: d.settings(email), log: log}
	r := &Runner[*model.Artifact]{
		Name:    model.PhaseDelivery,
		Ledger:  set.Delivery,
		Filters: filters,
		Limit:   opts.Limit,
		DryRun:  opts.DryRun || opts.NoEmail,
		Log:     log,
	}
	if opts.NoEmail {
		r.Preview = w.preview
	}

	res := r.RunBatch(ctx, completedArtifacts(t, entries), w)
	if opts.NoEmail && res.Metadata != nil {
		res.Metadata["digest"] = t.Path(tenant.DigestFile)
	}
	if res.Succeeded > 0 && d.Tenants != nil {
		if err := d.Tenants.RecordDelivery(t.Slug, res.Succeeded); err != nil {
			log.Warn("deliver: lifecycle counter not updated", zap.Int("delivered", res.Succeeded), zap.Error(err))
		}
	}
	return res
}

// settings layers the tenant's email settings over the process account.
func (d *Delivery) settings(e tenant.Email) mail.Settings {
	s := d.Mail
	if e.Sender != "" {
		s.Sender = e.Sender
	}
	if e.Password != "" {
		s.Password = e.Password
	}
	if e.SMTPHost != "" {
		s.Host = e.SMTPHost
	}
	if e.SMTPPort != 0 {
		s.Port = e.SMTPPort
	}
	return s
}

func (d *Delivery) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func completedArtifacts(t *tenant.Tenant, entries []ledger.Entry) iter.Seq[Candidate[*model.Artifact]] {
	return func(yield func(Candidate[*model.Artifact]) bool) {
		for _, e := range entries {
			if e.Status != ledger.StatusComplete {
				continue
			}
			c := Candidate[*model.Artifact]{Fingerprint: e.Fingerprint, Origin: model.PhaseTransformation, Label: e.Fingerprint}
			dir := e.Meta[MetaDir]
			if dir == "" {
				c.Err = eris.Errorf("deliver: entry %s has no artifact dir", e.Fingerprint)
			} else if a, err := LoadArtifact(t, dir); err != nil {
				c.Err = err
			} else {
				c.Item = a
				c.Label = a.Role + " @ " + a.Company
			}
			if !yield(c) {
				return
			}
		}
	}
}

type deliverWorker struct {
	d        *Delivery
	tenant   *tenant.Tenant
	settings mail.Settings
	log      *zap.Logger
}

// ProcessBatch sends one digest covering every package.
func (w *deliverWorker) ProcessBatch(ctx context.Context, cs []Candidate[*model.Artifact]) (Outcome, error) {
	digest := w.digest(cs)
	to := w.tenant.Config.Notifications.Email.Recipient
	msg, err := digest.Message(w.settings.Sender, to)
	if err != nil {
		return Outcome{}, err
	}
	if err := w.d.Transport(w.settings).Send(ctx, msg); err != nil {
		return Outcome{}, err
	}
	w.log.Info("deliver: digest sent", zap.String("recipient", to), zap.Int("packages", len(cs)))
	return Outcome{Status: ledger.StatusDelivered, Meta: map[string]string{"recipient": to}}, nil
}

// preview writes the digest page to the tenant dir without sending.
func (w *deliverWorker) preview(_ context.Context, cs []Candidate[*model.Artifact]) error {
	html, err := w.digest(cs).HTML()
	if err != nil {
		return err
	}
	path := w.tenant.Path(tenant.DigestFile)
	if err := tenant.WriteFile(path, []byte(html)); err != nil {
		return err
	}
	w.log.Info("deliver: digest written", zap.String("path", path), zap.Int("packages", len(cs)))
	return nil
}

func (w *deliverWorker) digest(cs []Candidate[*model.Artifact]) mail.Digest {
	d := mail.Digest{Candidate: w.tenant.Config.Candidate.Name(), Generated: w.d.now()}
	for _, c := range cs {
		d.Items = append(d.Items, w.item(c.Item))
	}
	return d
}

func (w *deliverWorker) item(a *model.Artifact) mail.Item {
	dir := w.tenant.Path(tenant.OutputDir, a.Dir)
	it := mail.Item{
		Company:    a.Company,
		Role:       a.Role,
		Location:   a.Location,
		Salary:     a.Salary,
		ApplyURL:   a.ApplyURL,
		Confidence: a.Confidence,
	}
	if f := firstOf(a.Files.ResumeDOCX, a.Files.ResumeMD); f != "" {
		it.Attachments = append(it.Attachments, mail.Attachment{Name: f, Path: filepath.Join(dir, f)})
	}
	if f := firstOf(a.Files.CoverLetterDOCX, a.Files.CoverLetterMD); f != "" {
		it.Attachments = append(it.Attachments, mail.Attachment{Name: f, Path: filepath.Join(dir, f)})
	}
	if a.Files.CoverLetterMD != "" {
		if data, err := os.ReadFile(filepath.Join(dir, a.Files.CoverLetterMD)); err == nil {
			it.CoverLetter = strings.TrimSpace(string(data))
		} else {
			w.log.Warn("deliver: cover letter unreadable", zap.String("dir", a.Dir), zap.Error(err))
		}
	}
	return it
}

func firstOf(names ...string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}
