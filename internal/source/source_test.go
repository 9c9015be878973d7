package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/tenant"
)

func newTestClient(maxRetries int) *Client {
	rates := make(map[string]rate.Limit)
	for name := range DefaultRates() {
		rates[name] = rate.Inf
	}
	return NewClient(ClientOptions{
		Budget: resilience.Budget{Timeout: 5 * time.Second, MaxRetries: maxRetries, BackoffBase: time.Millisecond},
		Rates:  rates,
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func searchFor(queries, locations []string) tenant.Search {
	return tenant.Search{Queries: queries, Locations: locations, DatePosted: "week", ResultsPerQuery: 10}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"plain", "Just text", "Just text"},
		{"structure", "<p>Hello &amp; welcome</p><ul><li>One</li><li>Two</li></ul><h2>Duties</h2>", "Hello & welcome\n- One\n- Two\n## Duties"},
		{"breaks", "Line one<br>Line two<br/>Line three", "Line one\nLine two\nLine three"},
		{"drops scripts", "<p>Keep</p><script>var x = 1;</script><style>p{}</style>", "Keep"},
		{"collapses blank runs", "<p>A</p><p></p><p></p><p>B</p>", "A\n\nB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.in))
		})
	}
}

func TestParseSalaryText(t *testing.T) {
	lo, hi := parseSalaryText("$120,000 - $150,000")
	assert.Equal(t, 120000.0, lo)
	assert.Equal(t, 150000.0, hi)

	lo, hi = parseSalaryText("$90k-$110K")
	assert.Equal(t, 90000.0, lo)
	assert.Equal(t, 110000.0, hi)

	lo, hi = parseSalaryText("competitive")
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestFlexDecoding(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C named      `json:"c"`
		D named      `json:"d"`
		E named      `json:"e"`
	}
	raw := `{"a": 12345, "b": "x-9", "c": "Acme", "d": {"display_name": "Globex"}, "e": {"name": "Initech"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, flexString("12345"), v.A)
	assert.Equal(t, flexString("x-9"), v.B)
	assert.Equal(t, named("Acme"), v.C)
	assert.Equal(t, named("Globex"), v.D)
	assert.Equal(t, named("Initech"), v.E)
}

func TestResolveKeys_TenantWins(t *testing.T) {
	keys := ResolveKeys(
		tenant.APIKeys{JSearch: "tenant-js"},
		Keys{JSearch: "global-js", AdzunaAppID: "gid", AdzunaAppKey: "gkey"},
	)
	assert.Equal(t, "tenant-js", keys.JSearch)
	assert.Equal(t, "gid", keys.AdzunaAppID)
	assert.Equal(t, "gkey", keys.AdzunaAppKey)
	assert.Empty(t, keys.FantasticJobs)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(newTestClient(0))
	assert.Equal(t, []string{NameFantasticJobs, NameJSearch, NameRemotive, NameAdzuna, NameRemoteOK, NameTheMuse}, r.Names())

	s, ok := r.Get(NameAdzuna)
	require.True(t, ok)
	assert.Equal(t, NameAdzuna, s.Name())

	_, ok = r.Get("monster")
	assert.False(t, ok)
}

func TestJSearch_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, jsearchHost, r.Header.Get("X-RapidAPI-Host"))
		assert.Equal(t, "scrum master in Toronto", r.URL.Query().Get("query"))
		assert.Equal(t, "week", r.URL.Query().Get("date_posted"))
		assert.Equal(t, "false", r.URL.Query().Get("remote_jobs_only"))
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{
				"job_id":              "j1",
				"job_title":           "Scrum Master",
				"employer_name":       "Acme",
				"job_city":            "Toronto",
				"job_state":           "ON",
				"job_country":         "CA",
				"job_description":     "Lead ceremonies.\nSalary: $95,000 - $115,000 per year",
				"job_apply_link":      "https://acme.example/jobs/1",
				"job_min_salary":      nil,
				"job_highlights":      map[string][]string{"Qualifications": {"CSM"}},
				"job_is_remote":       false,
				"job_employment_type": "FULLTIME",
			},
			{"job_id": "j2", "job_title": "Agile Coach", "employer_name": "Globex"},
		}})
	}))
	defer srv.Close()

	src := &JSearch{c: newTestClient(0)}
	search := searchFor([]string{"scrum master"}, []string{"Toronto"})
	search.ResultsPerQuery = 1

	got, err := src.Fetch(context.Background(), Request{
		Search:   search,
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
		Keys:     Keys{JSearch: "secret"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, NameJSearch, p.Source)
	assert.Equal(t, "Toronto, ON, CA", p.Location)
	assert.Equal(t, 95000.0, p.SalaryMin)
	assert.Equal(t, 115000.0, p.SalaryMax)
	assert.Equal(t, []string{"CSM"}, p.Highlights["Qualifications"])
}

func TestJSearch_MissingCredentials(t *testing.T) {
	src := &JSearch{c: newTestClient(0)}
	_, err := src.Fetch(context.Background(), Request{Search: searchFor([]string{"pm"}, []string{"Ottawa"})})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestJSearch_ForbiddenStopsSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"message":"You are not subscribed to this API."}`, http.StatusForbidden)
	}))
	defer srv.Close()

	src := &JSearch{c: newTestClient(2)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"pm", "scrum master"}, []string{"Ottawa", "Toronto"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
		Keys:     Keys{JSearch: "bad"},
	})
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Equal(t, resilience.ScopeSource, resilience.ScopeOf(err))
	assert.Equal(t, int32(1), hits.Load(), "credential rejections are not retried")
}

func TestJSearch_RateLimitKeepsPartialResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			writeJSON(t, w, map[string]any{"data": []map[string]any{
				{"job_id": "j1", "job_title": "Scrum Master", "employer_name": "Acme"},
			}})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := &JSearch{c: newTestClient(1)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"scrum master", "agile coach"}, []string{"Toronto"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
		Keys:     Keys{JSearch: "k"},
	})
	require.Error(t, err)
	assert.Equal(t, resilience.ScopeSource, resilience.ScopeOf(err))
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Company)
	assert.Equal(t, int32(3), hits.Load(), "one success plus two attempts at the throttled query")
}

func TestJSearch_ServerErrorSkipsQueryOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get("query"), "broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, map[string]any{"data": []map[string]any{
			{"job_id": "j9", "job_title": "Delivery Lead", "employer_name": "Initech"},
		}})
	}))
	defer srv.Close()

	src := &JSearch{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"broken", "delivery lead"}, []string{"Remote"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
		Keys:     Keys{JSearch: "k"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Delivery Lead", got[0].Title)
}

func TestFantasticJobs_Fetch(t *testing.T) {
	longBody := strings.Repeat("You will coordinate delivery across teams. ", 8)
	var apiCalls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/active-ats-7d", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		assert.Equal(t, "shared-key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, `"scrum master"`, r.URL.Query().Get("title_filter"))
		salary := map[string]any{
			"currency": "CAD",
			"value":    map[string]any{"minValue": 90000, "maxValue": 110000},
		}
		writeJSON(t, w, []map[string]any{
			{
				"id":                101,
				"title":             "Scrum Master",
				"organization":      "Acme",
				"locations_derived": []string{"Toronto, Ontario, Canada"},
				"employment_type":   []string{"FULL_TIME"},
				"url":               srv.URL + "/careers/101",
				"salary_raw":        salary,
			},
			{"id": 101, "title": "Scrum Master", "organization": "Acme"},
			{
				"id":             "102",
				"title":          "Agile Coach",
				"organization":   "Globex",
				"url":            srv.URL + "/careers/102",
				"remote_derived": true,
			},
		})
	})
	mux.HandleFunc("/careers/101", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><nav>Home | Jobs</nav><h1>Scrum Master</h1><p>" + longBody + "</p><footer>(c) Acme</footer></body></html>"))
	})
	mux.HandleFunc("/careers/102", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><div id=app></div></body></html>"))
	})

	src := &FantasticJobs{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"scrum master"}, []string{"Toronto", "Ottawa"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL, MaxAPICalls: 1},
		Keys:     Keys{JSearch: "shared-key"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), apiCalls.Load(), "max_api_calls caps upstream calls")
	require.Len(t, got, 2, "duplicate ids collapse")

	acme := got[0]
	assert.Equal(t, "101", acme.SourceID)
	assert.Equal(t, "Toronto, Ontario, Canada", acme.Location)
	assert.Equal(t, "FULL_TIME", acme.EmploymentType)
	assert.Equal(t, 90000.0, acme.SalaryMin)
	assert.Equal(t, 110000.0, acme.SalaryMax)
	assert.Equal(t, "CAD $90,000 - $110,000/yr", acme.SalaryRaw)
	assert.Contains(t, acme.Description, "## Scrum Master")
	assert.NotContains(t, acme.Description, "Home | Jobs")
	assert.NotContains(t, acme.Description, "(c) Acme")

	globex := got[1]
	assert.Empty(t, globex.Description, "thin career pages are not used")
	assert.True(t, globex.IsRemote)
}

func TestFantasticJobs_SalaryText(t *testing.T) {
	j := fantasticJob{SalaryRaw: json.RawMessage(`"$100,000 - $120,000"`)}
	lo, hi, raw := j.salary()
	assert.Equal(t, 100000.0, lo)
	assert.Equal(t, 120000.0, hi)
	assert.Equal(t, "$100,000 - $120,000", raw)

	lo, hi, raw = fantasticJob{}.salary()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
	assert.Empty(t, raw)
}

func TestRemotive_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "product owner", r.URL.Query().Get("search"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		writeJSON(t, w, map[string]any{"jobs": []map[string]any{
			{
				"id":           7,
				"title":        "Product Owner",
				"company_name": "Hooli",
				"description":  "<p>Own the <b>backlog</b></p>",
				"salary":       "$120,000 - $150,000",
				"url":          "https://remotive.example/7",
			},
			{"id": 7, "title": "Product Owner", "company_name": "Hooli"},
		}})
	}))
	defer srv.Close()

	src := &Remotive{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"product owner"}, nil),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Own the backlog", got[0].Description)
	assert.Equal(t, "Anywhere", got[0].Location)
	assert.True(t, got[0].IsRemote)
	assert.Equal(t, 120000.0, got[0].SalaryMin)
	assert.Equal(t, 150000.0, got[0].SalaryMax)
}

func TestAdzuna_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ca/search/1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "id", q.Get("app_id"))
		assert.Equal(t, "key", q.Get("app_key"))
		assert.Equal(t, "7", q.Get("max_days_old"))
		assert.Equal(t, "Calgary", q.Get("where"))
		writeJSON(t, w, map[string]any{"results": []map[string]any{
			{
				"id":           "a1",
				"title":        "Remote Project Manager",
				"company":      map[string]any{"display_name": "Umbrella"},
				"location":     map[string]any{"display_name": "Calgary, Alberta"},
				"salary_min":   80000,
				"salary_max":   95000,
				"redirect_url": "https://adzuna.example/a1",
			},
		}})
	}))
	defer srv.Close()

	src := &Adzuna{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"project manager"}, []string{"Calgary"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
		Keys:     Keys{AdzunaAppID: "id", AdzunaAppKey: "key"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Umbrella", got[0].Company)
	assert.Equal(t, "Calgary, Alberta", got[0].Location)
	assert.True(t, got[0].IsRemote)
	assert.Equal(t, 95000.0, got[0].Salary())
}

func TestAdzuna_MissingCredentials(t *testing.T) {
	src := &Adzuna{c: newTestClient(0)}
	_, err := src.Fetch(context.Background(), Request{Keys: Keys{AdzunaAppID: "only-id"}})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRemoteOK_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		writeJSON(t, w, []map[string]any{
			{"legal": "API terms"},
			{"id": "1", "position": "Scrum Master", "company": "Acme", "location": "Worldwide", "salary": "$90k - $110k"},
			{"id": "2", "position": "Scrum Master", "company": "Globex", "location": "USA only"},
			{"id": "3", "position": "Backend Engineer", "company": "Initech", "tags": []string{"go"}},
			{"id": "4", "position": "Engineer", "company": "Hooli", "tags": []string{"agile", "scrum master"}},
		})
	}))
	defer srv.Close()

	src := &RemoteOK{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"Scrum Master"}, nil),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].Company)
	assert.Equal(t, 90000.0, got[0].SalaryMin)
	assert.Equal(t, 110000.0, got[0].SalaryMax)
	assert.Equal(t, "Hooli", got[1].Company)
	assert.Equal(t, "Remote", got[1].Location)
}

func TestRemoteCompatible(t *testing.T) {
	assert.True(t, remoteCompatible(""))
	assert.True(t, remoteCompatible("North America"))
	assert.True(t, remoteCompatible("Somewhere odd"))
	assert.False(t, remoteCompatible("US Only"))
	assert.False(t, remoteCompatible("Remote - Germany"))
}

func TestTheMuse_Fetch(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		mu.Lock()
		pages = append(pages, r.URL.Query().Get("location")+"#"+page)
		mu.Unlock()
		if page != "1" {
			writeJSON(t, w, map[string]any{"results": []any{}})
			return
		}
		writeJSON(t, w, map[string]any{"results": []map[string]any{
			{
				"id":        55,
				"name":      "Senior Scrum Master",
				"company":   map[string]any{"name": "Acme"},
				"locations": []map[string]any{{"name": "Flexible / Remote"}},
				"levels":    []map[string]any{{"name": "Senior Level"}},
				"contents":  "<p>Coach teams.</p>",
				"refs":      map[string]any{"landing_page": "https://muse.example/55"},
			},
			{"id": 56, "name": "Accountant", "company": map[string]any{"name": "Globex"}},
		}})
	}))
	defer srv.Close()

	src := &TheMuse{c: newTestClient(0)}
	got, err := src.Fetch(context.Background(), Request{
		Search:   searchFor([]string{"scrum master"}, []string{"Toronto"}),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"Toronto#1", "Toronto#2"}, pages)
	mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Company)
	assert.Equal(t, "Senior Level", got[0].EmploymentType)
	assert.Equal(t, "https://muse.example/55", got[0].ApplyURL)
	assert.True(t, got[0].IsRemote)
	assert.Equal(t, "Coach teams.", got[0].Description)
}

func TestClient_CircuitOpensAcrossTenants(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(0)
	c.breakers = resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	src := &Remotive{c: c}
	req := Request{
		Search:   searchFor([]string{"a", "b", "c", "d"}, nil),
		Settings: tenant.SourceCfg{BaseURL: srv.URL},
	}

	_, err := src.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, resilience.ScopeSource, resilience.ScopeOf(err))
	assert.Equal(t, int32(2), hits.Load())

	// A second tenant fails fast without touching the server.
	_, err = src.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAdaptiveLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter("test", 10, 10)
	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.1)

	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.1)

	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)

	inf := NewAdaptiveLimiter("inf", rate.Inf, 1)
	inf.OnRateLimit()
	assert.Equal(t, rate.Inf, inf.Limit())
}

func TestAdaptiveLimiter_WaitCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter("slow", 0.001, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}
