// Package source fetches job postings from upstream job-board APIs. Every
// request goes through the resilience adapter with a per-source rate
// limiter and circuit breaker shared by all tenants in the process.
package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/resilience"
	"github.com/sells-group/jobpipe/internal/screen"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// Source names as they appear in tenant config and ledger origins.
const (
	NameFantasticJobs = "fantastic_jobs"
	NameJSearch       = "jsearch"
	NameRemotive      = "remotive"
	NameAdzuna        = "adzuna"
	NameRemoteOK      = "remoteok"
	NameTheMuse       = "themuse"

	atsPages = "ats_pages"
)

const (
	defaultResultsPerQuery = 10
	maxResponseBytes       = 10 << 20
	userAgent              = "jobpipe/1.0"
)

// ErrMissingCredentials is returned by a source that cannot run without
// an API key the tenant and the process both lack.
var ErrMissingCredentials = eris.New("source: missing credentials")

// Keys are the credentials available to one tenant's fetch.
type Keys struct {
	JSearch       string
	FantasticJobs string
	AdzunaAppID   string
	AdzunaAppKey  string
}

// ResolveKeys overlays a tenant's own keys on the process-wide fallbacks.
func ResolveKeys(own tenant.APIKeys, fallback Keys) Keys {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Keys{
		JSearch:       pick(own.JSearch, fallback.JSearch),
		FantasticJobs: pick(own.FantasticJobs, fallback.FantasticJobs),
		AdzunaAppID:   pick(own.AdzunaAppID, fallback.AdzunaAppID),
		AdzunaAppKey:  pick(own.AdzunaAppKey, fallback.AdzunaAppKey),
	}
}

// Request is one tenant's fetch against one source.
type Request struct {
	Search   tenant.Search
	Settings tenant.SourceCfg
	Keys     Keys
}

func (r Request) resultsPerQuery() int {
	if r.Search.ResultsPerQuery > 0 {
		return r.Search.ResultsPerQuery
	}
	return defaultResultsPerQuery
}

func (r Request) baseURL(fallback string) string {
	if r.Settings.BaseURL != "" {
		return strings.TrimRight(r.Settings.BaseURL, "/")
	}
	return fallback
}

// Source is an upstream job board.
//
// Fetch returns what it gathered even when it fails: a skip_source error
// comes back with the postings collected before the source was abandoned.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]model.Posting, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	HTTP     *http.Client
	Budget   resilience.Budget
	Breakers *resilience.ServiceBreakers
	// Rates overrides DefaultRates per source name.
	Rates map[string]rate.Limit
}

// Client is the HTTP plumbing shared by all sources.
type Client struct {
	http     *http.Client
	budget   resilience.Budget
	breakers *resilience.ServiceBreakers
	rates    map[string]rate.Limit

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewClient builds a Client.
func NewClient(opts ClientOptions) *Client {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{})
	}
	rates := DefaultRates()
	for name, r := range opts.Rates {
		rates[name] = r
	}
	return &Client{
		http:     opts.HTTP,
		budget:   opts.Budget,
		breakers: opts.Breakers,
		rates:    rates,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (c *Client) limiter(name string) *AdaptiveLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[name]; ok {
		return l
	}
	r, ok := c.rates[name]
	if !ok {
		r = rate.Inf
	}
	l := NewAdaptiveLimiter(name, r, 1)
	c.limiters[name] = l
	return l
}

// get performs a rate-limited GET under the call budget and returns the
// response body. Rejected credentials and exhausted rate limits escalate
// to skip_source.
func (c *Client) get(ctx context.Context, source, rawURL string, header http.Header) ([]byte, error) {
	lim := c.limiter(source)
	op := resilience.Op{
		Name:   source + ": get",
		Scope:  resilience.ScopeItem,
		Fields: []zap.Field{zap.String("source", source)},
	}
	// Career pages live on unrelated hosts; one bad site must not trip the
	// others.
	if source != atsPages {
		op.Breaker = c.breakers.Get(source)
	}
	body, err := resilience.Invoke(ctx, op, c.budget, func(ctx context.Context) ([]byte, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limiter", source)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: build request", source)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", userAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: request", source)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: read body", source), 0)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		if err := resilience.CheckStatus(source, resp, body); err != nil {
			if resilience.IsAuthFailure(err) {
				return nil, resilience.Escalate(err, resilience.ScopeSource)
			}
			return nil, err
		}
		lim.OnSuccess()
		return body, nil
	})
	if err != nil && resilience.StatusCode(err) == http.StatusTooManyRequests {
		return nil, resilience.Escalate(err, resilience.ScopeSource)
	}
	return body, err
}

// getJSON is get followed by a JSON decode into out.
func (c *Client) getJSON(ctx context.Context, source, rawURL string, header http.Header, out any) error {
	body, err := c.get(ctx, source, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: decode response", source)
	}
	return nil
}

// abandon logs a failed query and reports whether the whole source should
// stop.
func abandon(source string, err error, fields ...zap.Field) bool {
	scope := resilience.ScopeOf(err)
	fields = append(fields, zap.String("source", source), zap.String("scope", string(scope)), zap.Error(err))
	if scope == resilience.ScopeSource || scope == resilience.ScopeTenant {
		zap.L().Warn("source: abandoning source", fields...)
		return true
	}
	zap.L().Warn("source: query failed", fields...)
	return false
}

// finish fills defaults and backfills salary from the description when
// the API gave none.
func finish(p model.Posting) model.Posting {
	p.Title = strings.TrimSpace(p.Title)
	p.Company = strings.TrimSpace(p.Company)
	if p.Title == "" {
		p.Title = "Unknown"
	}
	if p.Company == "" {
		p.Company = "Unknown"
	}
	if p.SalaryMin == 0 && p.SalaryMax == 0 && p.Description != "" {
		if s, ok := screen.ExtractSalary(p.Description); ok {
			p.SalaryMin, p.SalaryMax, p.SalaryRaw = s.Min, s.Max, s.Raw
		}
	}
	return p
}

// Registry holds the known sources in their enumeration order.
type Registry struct {
	sources []Source
}

// NewRegistry returns every built-in source backed by c.
func NewRegistry(c *Client) *Registry {
	return NewRegistryOf(
		&FantasticJobs{c: c},
		&JSearch{c: c},
		&Remotive{c: c},
		&Adzuna{c: c},
		&RemoteOK{c: c},
		&TheMuse{c: c},
	)
}

// NewRegistryOf returns a registry over the given sources.
func NewRegistryOf(sources ...Source) *Registry {
	return &Registry{sources: sources}
}

// All returns the sources in enumeration order.
func (r *Registry) All() []Source {
	return r.sources
}

// Get looks up a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	for _, s := range r.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Names lists the registered source names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}

// DefaultSettings returns the source block written into a new tenant's
// config: every source enabled at its public endpoint.
func DefaultSettings() map[string]tenant.SourceCfg {
	on := func() *bool { b := true; return &b }
	return map[string]tenant.SourceCfg{
		NameFantasticJobs: {Enabled: on(), BaseURL: fantasticURL},
		NameJSearch:       {Enabled: on(), BaseURL: jsearchURL},
		NameRemotive:      {Enabled: on(), BaseURL: remotiveURL},
		NameAdzuna:        {Enabled: on(), BaseURL: adzunaURL, Country: adzunaCountry},
		NameRemoteOK:      {Enabled: on(), BaseURL: remoteOKURL},
		NameTheMuse:       {Enabled: on(), BaseURL: theMuseURL},
	}
}
