package main

import (
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobpipe/internal/ai"
	"github.com/sells-group/jobpipe/internal/config"
	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/mail"
	"github.com/sells-group/jobpipe/internal/phase"
	"github.com/sells-group/jobpipe/internal/pipeline"
	"github.com/sells-group/jobpipe/internal/render"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/screen"
	"github.com/sells-group/jobpipe/internal/source"
)

// buildPipeline wires the phases from configuration. Breakers and rate
// limiters live in the source client and are shared by every tenant.
func buildPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	gen, err := ai.New(c)
	if err != nil {
		return nil, eris.Wrap(err, "build generator")
	}

	breakers := resilience.NewServiceBreakers(resilience.NewCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs))
	client := source.NewClient(source.ClientOptions{
		Budget:   c.Budgets.Source.Budget(),
		Breakers: breakers,
	})

	acq := &phase.Acquisition{
		Sources: source.NewRegistry(client),
		Keys: source.Keys{
			JSearch:       c.APIKeys.JSearch,
			FantasticJobs: c.APIKeys.FantasticJobs,
			AdzunaAppID:   c.APIKeys.AdzunaAppID,
			AdzunaAppKey:  c.APIKeys.AdzunaAppKey,
		},
		Checker: screen.NewLivenessChecker(&http.Client{}, c.Budgets.URLCheck.Budget()),
	}

	xf := &phase.Transformation{
		Generator: gen,
		Renderer:  render.NewPandoc(c.Render.PandocPath, c.Budgets.Render.Budget()),
		Budget:    c.Budgets.AI.Budget(),
	}

	mailBudget := c.Budgets.Mail.Budget()
	dl := &phase.Delivery{
		Mail: mail.Settings{
			Sender:   c.Mail.Sender,
			Password: c.Mail.Password,
			Host:     c.Mail.SMTPHost,
			Port:     c.Mail.SMTPPort,
		},
		Transport: func(s mail.Settings) mail.Transport { return mail.NewSMTP(s, mailBudget) },
		Tenants:   tenants(),
	}

	return pipeline.New(tenants(), ledger.Driver(c.Ledger.Driver), acq, xf, dl), nil
}
