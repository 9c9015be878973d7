package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/model"
)

const (
	adzunaURL     = "https://api.adzuna.com/v1/api/jobs"
	adzunaCountry = "ca"
)

// Adzuna queries the Adzuna search API, which carries salary data for
// most postings.
type Adzuna struct {
	c *Client
}

// Name implements Source.
func (s *Adzuna) Name() string { return NameAdzuna }

type adzunaResponse struct {
	Results []struct {
		ID           flexString `json:"id"`
		Title        string     `json:"title"`
		Company      named      `json:"company"`
		Location     named      `json:"location"`
		Description  string     `json:"description"`
		RedirectURL  string     `json:"redirect_url"`
		Created      string     `json:"created"`
		SalaryMin    float64    `json:"salary_min"`
		SalaryMax    float64    `json:"salary_max"`
		ContractType string     `json:"contract_type"`
	} `json:"results"`
}

// Fetch implements Source.
func (s *Adzuna) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	if req.Keys.AdzunaAppID == "" || req.Keys.AdzunaAppKey == "" {
		return nil, ErrMissingCredentials
	}
	country := req.Settings.Country
	if country == "" {
		country = adzunaCountry
	}
	maxDaysOld := "30"
	if req.Search.DatePosted == "week" {
		maxDaysOld = "7"
	}
	endpoint := req.baseURL(adzunaURL) + "/" + url.PathEscape(country) + "/search/1"

	var out []model.Posting
	for _, query := range req.Search.Queries {
		for _, location := range req.Search.Locations {
			params := url.Values{}
			params.Set("app_id", req.Keys.AdzunaAppID)
			params.Set("app_key", req.Keys.AdzunaAppKey)
			params.Set("what", query)
			params.Set("where", location)
			params.Set("results_per_page", strconv.Itoa(req.resultsPerQuery()))
			params.Set("max_days_old", maxDaysOld)
			params.Set("sort_by", "date")

			var resp adzunaResponse
			if err := s.c.getJSON(ctx, NameAdzuna, endpoint+"?"+params.Encode(), nil, &resp); err != nil {
				if abandon(NameAdzuna, err, zap.String("query", query), zap.String("location", location)) {
					return out, err
				}
				continue
			}

			for _, item := range resp.Results {
				loc := string(item.Location)
				remote := strings.Contains(strings.ToLower(item.Title), "remote") ||
					strings.Contains(strings.ToLower(loc), "remote")
				out = append(out, finish(model.Posting{
					Source:         NameAdzuna,
					SourceID:       string(item.ID),
					Title:          item.Title,
					Company:        string(item.Company),
					Location:       loc,
					Description:    HTMLToText(item.Description),
					ApplyURL:       item.RedirectURL,
					PostedDate:     item.Created,
					SalaryMin:      item.SalaryMin,
					SalaryMax:      item.SalaryMax,
					EmploymentType: item.ContractType,
					IsRemote:       remote,
				}))
			}
		}
	}
	return out, nil
}
