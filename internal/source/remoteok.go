package source

import (
	"context"
	"strings"

	"github.com/sells-group/jobpipe/internal/model"
)

const remoteOKURL = "https://remoteok.com/api"

// Location labels that rule a remote posting out for a North American
// candidate. Anything not listed, including an empty location, passes.
var remoteIncompatible = []string{
	"usa only", "us only", "us-only", "us-based", "united states only",
	"europe only", "eu only", "uk only", "apac only", "latam only",
	"brazil", "india", "australia only", "germany", "france",
}

// RemoteOK reads the RemoteOK feed. The API has no search, so postings
// are matched against the tenant's queries client-side.
type RemoteOK struct {
	c *Client
}

// Name implements Source.
func (s *RemoteOK) Name() string { return NameRemoteOK }

type remoteOKJob struct {
	ID          flexString `json:"id"`
	Position    string     `json:"position"`
	Company     string     `json:"company"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Location    string     `json:"location"`
	URL         string     `json:"url"`
	Date        string     `json:"date"`
	Salary      string     `json:"salary"`
	SalaryMin   float64    `json:"salary_min"`
	SalaryMax   float64    `json:"salary_max"`
}

func (j remoteOKJob) matches(queries []string) bool {
	searchable := strings.ToLower(strings.Join([]string{
		j.Position, j.Company, strings.Join(j.Tags, " "), j.Description,
	}, " "))
	for _, q := range queries {
		if strings.Contains(searchable, strings.ToLower(q)) {
			return true
		}
	}
	return false
}

func remoteCompatible(location string) bool {
	loc := strings.ToLower(strings.TrimSpace(location))
	for _, bad := range remoteIncompatible {
		if strings.Contains(loc, bad) {
			return false
		}
	}
	return true
}

// Fetch implements Source.
func (s *RemoteOK) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	var feed []remoteOKJob
	if err := s.c.getJSON(ctx, NameRemoteOK, req.baseURL(remoteOKURL), nil, &feed); err != nil {
		abandon(NameRemoteOK, err)
		return nil, err
	}

	limit := req.resultsPerQuery() * len(req.Search.Queries)
	var out []model.Posting
	for _, item := range feed {
		if len(out) >= limit {
			break
		}
		// The first element is feed metadata without an id.
		if item.ID == "" {
			continue
		}
		if !item.matches(req.Search.Queries) || !remoteCompatible(item.Location) {
			continue
		}

		location := item.Location
		if location == "" {
			location = "Remote"
		}
		p := model.Posting{
			Source:      NameRemoteOK,
			SourceID:    string(item.ID),
			Title:       item.Position,
			Company:     item.Company,
			Location:    location,
			Description: HTMLToText(item.Description),
			ApplyURL:    item.URL,
			PostedDate:  item.Date,
			SalaryMin:   item.SalaryMin,
			SalaryMax:   item.SalaryMax,
			IsRemote:    true,
		}
		if item.Salary != "" {
			p.SalaryRaw = item.Salary
			if p.SalaryMin == 0 && p.SalaryMax == 0 {
				p.SalaryMin, p.SalaryMax = parseSalaryText(item.Salary)
			}
		}
		out = append(out, finish(p))
	}
	return out, nil
}
