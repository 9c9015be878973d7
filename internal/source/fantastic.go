package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/jobpipe/internal/model"
)

const (
	fantasticURL  = "https://active-jobs-db.p.rapidapi.com"
	fantasticHost = "active-jobs-db.p.rapidapi.com"
)

// FantasticJobs queries the Active Jobs DB, which indexes employer ATS
// career sites. The API returns metadata only, so descriptions are read
// from each posting's career page.
type FantasticJobs struct {
	c *Client
}

// Name implements Source.
func (s *FantasticJobs) Name() string { return NameFantasticJobs }

type fantasticJob struct {
	ID               flexString      `json:"id"`
	Title            string          `json:"title"`
	Organization     string          `json:"organization"`
	LocationsDerived []string        `json:"locations_derived"`
	EmploymentType   []string        `json:"employment_type"`
	URL              string          `json:"url"`
	DatePosted       string          `json:"date_posted"`
	RemoteDerived    bool            `json:"remote_derived"`
	SalaryRaw        json.RawMessage `json:"salary_raw"`
}

var salaryPrinter = message.NewPrinter(language.English)

// salary interprets salary_raw, which is either free text or a JSON-LD
// MonetaryAmount object.
func (j fantasticJob) salary() (lo, hi float64, raw string) {
	if len(j.SalaryRaw) == 0 || string(j.SalaryRaw) == "null" {
		return 0, 0, ""
	}
	var text string
	if err := json.Unmarshal(j.SalaryRaw, &text); err == nil {
		lo, hi = parseSalaryText(text)
		return lo, hi, text
	}

	var amount struct {
		Currency string          `json:"currency"`
		Value    json.RawMessage `json:"value"`
		MinValue float64         `json:"minValue"`
		MaxValue float64         `json:"maxValue"`
	}
	if err := json.Unmarshal(j.SalaryRaw, &amount); err != nil {
		return 0, 0, ""
	}
	lo, hi = amount.MinValue, amount.MaxValue
	var nested struct {
		MinValue float64 `json:"minValue"`
		MaxValue float64 `json:"maxValue"`
	}
	if len(amount.Value) > 0 && json.Unmarshal(amount.Value, &nested) == nil {
		lo, hi = nested.MinValue, nested.MaxValue
	}
	switch {
	case lo > 0 && hi > 0:
		raw = salaryPrinter.Sprintf("%s $%d - $%d/yr", amount.Currency, int64(lo), int64(hi))
	case lo > 0:
		raw = salaryPrinter.Sprintf("%s $%d/yr", amount.Currency, int64(lo))
	}
	return lo, hi, strings.TrimSpace(raw)
}

// Fetch implements Source.
func (s *FantasticJobs) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	key := req.Keys.FantasticJobs
	if key == "" {
		key = req.Keys.JSearch
	}
	if key == "" {
		return nil, ErrMissingCredentials
	}
	header := http.Header{}
	header.Set("X-RapidAPI-Key", key)
	header.Set("X-RapidAPI-Host", fantasticHost)

	maxCalls := req.Settings.MaxAPICalls
	calls := 0
	seen := make(map[string]struct{})

	var out []model.Posting
	for _, query := range req.Search.Queries {
		for _, location := range req.Search.Locations {
			if maxCalls > 0 && calls >= maxCalls {
				zap.L().Info("source: api call cap reached",
					zap.String("source", NameFantasticJobs), zap.Int("max_api_calls", maxCalls))
				return out, nil
			}
			calls++

			params := url.Values{}
			params.Set("title_filter", strconv.Quote(query))
			params.Set("location_filter", strconv.Quote(location))
			params.Set("limit", strconv.Itoa(req.resultsPerQuery()))
			params.Set("offset", "0")

			var items []fantasticJob
			endpoint := req.baseURL(fantasticURL) + "/active-ats-7d?" + params.Encode()
			if err := s.c.getJSON(ctx, NameFantasticJobs, endpoint, header, &items); err != nil {
				if abandon(NameFantasticJobs, err, zap.String("query", query), zap.String("location", location)) {
					return out, err
				}
				continue
			}

			for _, item := range items {
				id := string(item.ID)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, s.posting(ctx, item))
			}
		}
	}
	return out, nil
}

func (s *FantasticJobs) posting(ctx context.Context, item fantasticJob) model.Posting {
	p := model.Posting{
		Source:     NameFantasticJobs,
		SourceID:   string(item.ID),
		Title:      item.Title,
		Company:    item.Organization,
		ApplyURL:   item.URL,
		PostedDate: item.DatePosted,
		IsRemote:   item.RemoteDerived,
	}
	if len(item.LocationsDerived) > 0 {
		p.Location = item.LocationsDerived[0]
	}
	if len(item.EmploymentType) > 0 {
		p.EmploymentType = item.EmploymentType[0]
	}
	p.SalaryMin, p.SalaryMax, p.SalaryRaw = item.salary()

	if text := s.c.pageText(ctx, item.URL); len(text) >= minATSDescription {
		p.Description = text
	} else {
		zap.L().Debug("source: career page too thin for a description",
			zap.String("url", item.URL), zap.Int("chars", len(text)))
	}
	return finish(p)
}
