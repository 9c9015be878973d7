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
	theMuseURL   = "https://www.themuse.com/api/public/jobs"
	theMusePages = 2
)

// TheMuse reads The Muse public jobs API, newest first. Titles are
// matched against the tenant's queries client-side.
type TheMuse struct {
	c *Client
}

// Name implements Source.
func (s *TheMuse) Name() string { return NameTheMuse }

type theMuseResponse struct {
	Results []struct {
		ID        flexString `json:"id"`
		Name      string     `json:"name"`
		Company   named      `json:"company"`
		Locations []named    `json:"locations"`
		Levels    []named    `json:"levels"`
		Contents  string     `json:"contents"`
		Published string     `json:"publication_date"`
		Refs      struct {
			LandingPage string `json:"landing_page"`
		} `json:"refs"`
	} `json:"results"`
}

func titleMatches(title string, queries []string) bool {
	lower := strings.ToLower(title)
	for _, q := range queries {
		if strings.Contains(lower, strings.ToLower(q)) {
			return true
		}
	}
	return false
}

// Fetch implements Source.
func (s *TheMuse) Fetch(ctx context.Context, req Request) ([]model.Posting, error) {
	locations := req.Search.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}

	seen := make(map[string]struct{})
	var out []model.Posting
	for _, location := range locations {
		for page := 1; page <= theMusePages; page++ {
			params := url.Values{}
			params.Set("page", strconv.Itoa(page))
			params.Set("descending", "true")
			if location != "" {
				params.Set("location", location)
			}

			var resp theMuseResponse
			if err := s.c.getJSON(ctx, NameTheMuse, req.baseURL(theMuseURL)+"?"+params.Encode(), nil, &resp); err != nil {
				if abandon(NameTheMuse, err, zap.String("location", location), zap.Int("page", page)) {
					return out, err
				}
				break
			}
			if len(resp.Results) == 0 {
				break
			}

			for _, item := range resp.Results {
				id := string(item.ID)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				if !titleMatches(item.Name, req.Search.Queries) {
					continue
				}

				loc := joinNames(item.Locations)
				if loc == "" {
					loc = "N/A"
				}
				lowerLoc := strings.ToLower(loc)
				out = append(out, finish(model.Posting{
					Source:         NameTheMuse,
					SourceID:       id,
					Title:          item.Name,
					Company:        string(item.Company),
					Location:       loc,
					Description:    HTMLToText(item.Contents),
					ApplyURL:       item.Refs.LandingPage,
					PostedDate:     item.Published,
					EmploymentType: joinNames(item.Levels),
					IsRemote:       strings.Contains(lowerLoc, "remote") || strings.Contains(lowerLoc, "flexible"),
				}))
			}
		}
	}
	return out, nil
}
