package source

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/model"
)

const remotiveURL = "https://remotive.com/api/remote-jobs"

// Remotive queries the Remotive remote-jobs board. It needs no key but
// allows only about two requests a minute.
type Remotive struct {
	c *Client
}

// Name implements Source.
func (s *Remotive) Name() string { return NameRemotive }

type remotiveResponse struct {
	Jobs []struct {
		ID          flexString `json:"id"`
		Title       string     `json:"title"`
		Company     string     `json:"company_name"`
		Location    string     `json:"candidate_required_location"`
		Description string     `json:"description"`
		URL         string     `json:"url"`
		Published   string     `json:"publication_date"`
		JobType     string     `json:"job_type"`
		Salary      string     `json:"salary"`
	} `json:"jobs"`
}

// Fetch implements Source.
func (s *Remotive) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	seen := make(map[string]struct{})
	var out []model.Posting
	for _, query := range req.Search.Queries {
		params := url.Values{}
		params.Set("search", query)
		params.Set("limit", strconv.Itoa(req.resultsPerQuery()))

		var resp remotiveResponse
		if err := s.c.getJSON(ctx, NameRemotive, req.baseURL(remotiveURL)+"?"+params.Encode(), nil, &resp); err != nil {
			if abandon(NameRemotive, err, zap.String("query", query)) {
				return out, err
			}
			continue
		}

		for _, item := range resp.Jobs {
			id := string(item.ID)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			location := item.Location
			if location == "" {
				location = "Anywhere"
			}
			p := model.Posting{
				Source:         NameRemotive,
				SourceID:       id,
				Title:          item.Title,
				Company:        item.Company,
				Location:       location,
				Description:    HTMLToText(item.Description),
				ApplyURL:       item.URL,
				PostedDate:     item.Published,
				EmploymentType: item.JobType,
				IsRemote:       true,
			}
			if item.Salary != "" {
				p.SalaryMin, p.SalaryMax = parseSalaryText(item.Salary)
				p.SalaryRaw = item.Salary
			}
			out = append(out, finish(p))
		}
	}
	return out, nil
}
