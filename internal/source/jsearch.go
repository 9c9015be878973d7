package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/model"
)

const (
	jsearchURL  = "https://jsearch.p.rapidapi.com/search"
	jsearchHost = "jsearch.p.rapidapi.com"
)

// JSearch queries the JSearch aggregator on RapidAPI, one call per
// query and location pair.
type JSearch struct {
	c *Client
}

// Name implements Source.
func (s *JSearch) Name() string { return NameJSearch }

type jsearchResponse struct {
	Data []jsearchJob `json:"data"`
}

type jsearchJob struct {
	ID             string              `json:"job_id"`
	Title          string              `json:"job_title"`
	Employer       string              `json:"employer_name"`
	City           string              `json:"job_city"`
	State          string              `json:"job_state"`
	Country        string              `json:"job_country"`
	Description    string              `json:"job_description"`
	ApplyLink      string              `json:"job_apply_link"`
	PostedAt       string              `json:"job_posted_at_datetime_utc"`
	MinSalary      float64             `json:"job_min_salary"`
	MaxSalary      float64             `json:"job_max_salary"`
	EmploymentType string              `json:"job_employment_type"`
	IsRemote       bool                `json:"job_is_remote"`
	Highlights     map[string][]string `json:"job_highlights"`
}

func (j jsearchJob) posting() model.Posting {
	return finish(model.Posting{
		Source:         NameJSearch,
		SourceID:       j.ID,
		Title:          j.Title,
		Company:        j.Employer,
		Location:       joinNames([]named{named(j.City), named(j.State), named(j.Country)}),
		Description:    j.Description,
		ApplyURL:       j.ApplyLink,
		PostedDate:     j.PostedAt,
		SalaryMin:      j.MinSalary,
		SalaryMax:      j.MaxSalary,
		EmploymentType: j.EmploymentType,
		IsRemote:       j.IsRemote,
		Highlights:     j.Highlights,
	})
}

// Fetch implements Source.
func (s *JSearch) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	if req.Keys.JSearch == "" {
		return nil, ErrMissingCredentials
	}
	header := http.Header{}
	header.Set("X-RapidAPI-Key", req.Keys.JSearch)
	header.Set("X-RapidAPI-Host", jsearchHost)

	datePosted := req.Search.DatePosted
	if datePosted == "" {
		datePosted = "week"
	}
	limit := req.resultsPerQuery()

	var out []model.Posting
	for _, query := range req.Search.Queries {
		for _, location := range req.Search.Locations {
			params := url.Values{}
			params.Set("query", query+" in "+location)
			params.Set("page", "1")
			params.Set("num_pages", "1")
			params.Set("date_posted", datePosted)
			params.Set("remote_jobs_only", strconv.FormatBool(req.Search.RemoteOnly))

			var resp jsearchResponse
			if err := s.c.getJSON(ctx, NameJSearch, req.baseURL(jsearchURL)+"?"+params.Encode(), header, &resp); err != nil {
				if abandon(NameJSearch, err, zap.String("query", query), zap.String("location", location)) {
					return out, err
				}
				continue
			}
			for i, item := range resp.Data {
				if i >= limit {
					break
				}
				out = append(out, item.posting())
			}
		}
	}
	return out, nil
}
