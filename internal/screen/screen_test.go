package screen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/tenant"
)

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	rules := tenant.Filters{
		ExcludeCompanies: []string{"Staffing"},
		MustContain:      []string{"agile", "scrum"},
		ExcludeKeywords:  []string{"intern"},
		MinSalary:        90000,
		ExcludeDomains:   []string{"spam.example"},
	}
	f := NewFilter(rules, "Brantford, Ontario")

	base := model.Posting{Title: "Scrum Master", Company: "Acme", Location: "Toronto, ON", Description: "agile teams"}

	tests := []struct {
		name   string
		mutate func(p *model.Posting)
		want   bool
	}{
		{"passes", func(p *model.Posting) {}, true},
		{"excluded company", func(p *model.Posting) { p.Company = "Big Staffing Inc" }, false},
		{"no required keyword", func(p *model.Posting) { p.Title = "Engineer"; p.Description = "go" }, false},
		{"excluded keyword", func(p *model.Posting) { p.Title = "Scrum Intern" }, false},
		{"salary too low", func(p *model.Posting) { p.SalaryMax = 60000 }, false},
		{"salary unknown passes", func(p *model.Posting) { p.SalaryMin, p.SalaryMax = 0, 0 }, true},
		{"min salary fallback", func(p *model.Posting) { p.SalaryMin = 95000 }, true},
		{"excluded domain", func(p *model.Posting) { p.ApplyURL = "https://spam.example/job/1" }, false},
		{"other province", func(p *model.Posting) { p.Location = "Calgary, Alberta" }, false},
		{"other province remote", func(p *model.Posting) { p.Location = "Calgary, Alberta"; p.IsRemote = true }, true},
		{"remote in title", func(p *model.Posting) { p.Location = "Vancouver, BC"; p.Title = "Remote Scrum Master" }, true},
		{"no location", func(p *model.Posting) { p.Location = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := base
			tt.mutate(&p)
			ok, reason := f.Match(&p)
			assert.Equal(t, tt.want, ok, reason)
			if !ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestFilter_IncludeDomains(t *testing.T) {
	t.Parallel()

	f := NewFilter(tenant.Filters{IncludeDomains: []string{"greenhouse.io"}}, "")
	ok, _ := f.Match(&model.Posting{ApplyURL: "https://boards.greenhouse.io/acme/1"})
	assert.True(t, ok)
	ok, _ = f.Match(&model.Posting{ApplyURL: "https://lever.co/acme/1"})
	assert.False(t, ok)
}

func TestProvince(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Brantford, Ontario": "Ontario",
		"Halifax, NS":        "Nova Scotia",
		"Montréal":           "Quebec",
		"Greater Toronto":    "Ontario",
		"Remote":             "",
		"Boston, MA":         "",
		"":                   "",
		// Lower-case "on" is not a province code.
		"work on site": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Province(in), in)
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	rel := tenant.Relevance{
		FocusAreas: []tenant.FocusArea{
			{Name: "agile", Weight: 3, Keywords: []string{"scrum", "kanban", "sprint", "retrospective"}},
			{Name: "delivery", Weight: 1, Keywords: []string{"roadmap", "stakeholder"}},
		},
		AntiSignals: []string{"sales"},
	}

	jd := "Lead scrum ceremonies.\nRun sprint planning and retrospective.\nOwn the roadmap."
	score, breakdown := Score("Scrum Master", jd, rel)

	// agile: breadth 3/4, density 3/20 -> (0.525+0.045)*3 = 1.71
	// delivery: breadth 1/2, density 1/20 -> (0.35+0.015)*1 = 0.365
	assert.InDelta(t, 1.71, breakdown["agile"], 1e-9)
	assert.InDelta(t, 0.365, breakdown["delivery"], 1e-9)
	assert.InDelta(t, (1.71+0.365)/4, score, 1e-9)

	titled, _ := Score("Sales Scrum Master", jd, rel)
	assert.InDelta(t, score-0.5, titled, 1e-9)

	header, _ := Score("Scrum Master", "Our sales org needs you\n"+jd, rel)
	assert.Less(t, header, score)

	// Word boundary: "wholesales" is not "sales".
	boundary, _ := Score("Wholesales Scrum Master", jd, rel)
	assert.InDelta(t, score, boundary, 1e-9)
}

func TestScore_NoFocusAreas(t *testing.T) {
	t.Parallel()

	score, breakdown := Score("Anything", "text", tenant.Relevance{})
	assert.Equal(t, 1.0, score)
	assert.Empty(t, breakdown)
}

func TestScore_ClampsAtZero(t *testing.T) {
	t.Parallel()

	rel := tenant.Relevance{
		FocusAreas:  []tenant.FocusArea{{Name: "x", Weight: 1, Keywords: []string{"kubernetes"}}},
		AntiSignals: []string{"nurse"},
	}
	score, _ := Score("Nurse", "patient care", rel)
	assert.Equal(t, 0.0, score)
}

func TestExtractSalary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		min, max float64
		ok       bool
	}{
		{"range", "Compensation: $120,000 - $165,000 per year", 120000, 165000, true},
		{"range with to and CAD", "CAD$95,000 to $110,000", 95000, 110000, true},
		{"k range", "Pay band $90K-$110k", 90000, 110000, true},
		{"labelled", "Salary: $85,000", 85000, 0, true},
		{"single", "Up to $130,000 plus bonus", 130000, 0, true},
		{"hourly skipped", "$45 - $60 per hour\nnothing else", 0, 0, false},
		{"hourly then annual", "$45/hour for contractors\nEmployees: $100,000 - $120,000", 100000, 120000, true},
		{"below floor", "Signing bonus $5,000", 0, 0, false},
		{"none", "Competitive pay", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, ok := ExtractSalary(tt.text)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.min, s.Min)
			assert.Equal(t, tt.max, s.Max)
			if ok {
				assert.NotEmpty(t, s.Raw)
			}
		})
	}
}

func TestLivenessChecker(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("home"))
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/open", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<h1>Scrum Master</h1> Apply now"))
	})
	mux.HandleFunc("/expired", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Sorry, This Position Has Been Filled."))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/late", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", livenessScanBytes) + "this job has expired"))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/walled", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "8a1b2c3d")
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/captcha", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>Please complete the hCaptcha to continue.</p>"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewLivenessChecker(srv.Client(), resilience.Budget{Timeout: 200 * time.Millisecond})

	tests := []struct {
		path   string
		alive  bool
		reason string
	}{
		{"/open", true, "ok"},
		{"/expired", false, "content:this position has been filled"},
		{"/missing", false, "http_404"},
		{"/gone", false, "http_410"},
		{"/moved", false, "redirect_to_homepage"},
		{"/late", true, "ok"},
		{"/down", true, "http_503"},
		{"/walled", true, "blocked:cloudflare"},
		{"/captcha", true, "blocked:captcha"},
		{"/slow", true, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			alive, reason := c.Check(context.Background(), srv.URL+tt.path)
			assert.Equal(t, tt.alive, alive)
			assert.Equal(t, tt.reason, reason)
		})
	}

	alive, reason := c.Check(context.Background(), "")
	assert.True(t, alive)
	assert.Equal(t, "no_url", reason)
}

func TestDetectBlock(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	tests := []struct {
		name string
		resp *http.Response
		body string
		want blockKind
	}{
		{"nil response", nil, "", blockNone},
		{"cloudflare server header", &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Server": {"cloudflare"}}}, "", blockCloudflare},
		{"plain 403", &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}, "", blockNone},
		{"browser check", ok, "<title>Just a moment...</title> Checking your browser", blockCloudflare},
		{"recaptcha", ok, `<div class="g-recaptcha"></div>`, blockCaptcha},
		{"js shell", ok, "<noscript>Enable JavaScript to view this job.</noscript>", blockJSShell},
		{"meta refresh", ok, `<meta http-equiv="refresh" content="0;url=/jobs">`, blockJSShell},
		{"long noscript page", ok, "<noscript>javascript</noscript>" + strings.Repeat("a", shellBytes), blockNone},
		{"posting", ok, "<h1>Platform Engineer</h1><p>Apply now</p>", blockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectBlock(tt.resp, []byte(tt.body)))
		})
	}
}
