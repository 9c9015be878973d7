package tenant

// Config is a tenant's config.yaml. It is human-editable; the pipeline
// only reads it, except at import time.
type Config struct {
	Candidate     Candidate            `yaml:"candidate"`
	Search        Search               `yaml:"search"`
	APIKeys       APIKeys              `yaml:"api_keys,omitempty"`
	Sources       map[string]SourceCfg `yaml:"sources,omitempty"`
	Filters       Filters              `yaml:"filters"`
	Relevance     Relevance            `yaml:"relevance"`
	Notifications Notifications        `yaml:"notifications"`
}

// Candidate identifies the person the applications are tailored for.
type Candidate struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Location  string `yaml:"location,omitempty"`
}

// Name returns the candidate's full name.
func (c Candidate) Name() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Search controls what acquisition asks upstream sources for.
type Search struct {
	Queries         []string `yaml:"queries"`
	Locations       []string `yaml:"locations"`
	RemoteOnly      bool     `yaml:"remote_only"`
	DatePosted      string   `yaml:"date_posted"`
	ResultsPerQuery int      `yaml:"results_per_query"`
	// MaxNewPerRun caps newly accepted postings per run. Zero means no cap.
	MaxNewPerRun int `yaml:"max_new_per_run,omitempty"`
}

// APIKeys holds tenant-specific source credentials.
type APIKeys struct {
	JSearch       string `yaml:"jsearch_rapidapi,omitempty"`
	FantasticJobs string `yaml:"fantastic_jobs_rapidapi,omitempty"`
	AdzunaAppID   string `yaml:"adzuna_app_id,omitempty"`
	AdzunaAppKey  string `yaml:"adzuna_app_key,omitempty"`
}

// SourceCfg overrides one source's defaults.
type SourceCfg struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	Country     string `yaml:"country,omitempty"`
	MaxAPICalls int    `yaml:"max_api_calls,omitempty"`
}

// SourceEnabled reports whether name is enabled. Sources are on unless
// explicitly disabled.
func (c *Config) SourceEnabled(name string) bool {
	s, ok := c.Sources[name]
	if !ok || s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// Source returns the overrides for name.
func (c *Config) Source(name string) SourceCfg {
	return c.Sources[name]
}

// Filters are the tenant's allow and deny rules for postings.
type Filters struct {
	ExcludeCompanies []string `yaml:"exclude_companies,omitempty"`
	MustContain      []string `yaml:"must_contain,omitempty"`
	ExcludeKeywords  []string `yaml:"exclude_keywords,omitempty"`
	MinSalary        float64  `yaml:"min_salary,omitempty"`
	IncludeDomains   []string `yaml:"include_domains,omitempty"`
	ExcludeDomains   []string `yaml:"exclude_domains,omitempty"`
}

// FocusArea is a weighted group of keywords a posting should mention.
type FocusArea struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// Relevance configures posting scoring.
type Relevance struct {
	FocusAreas  []FocusArea `yaml:"focus_areas,omitempty"`
	AntiSignals []string    `yaml:"anti_signals,omitempty"`
	MinScore    float64     `yaml:"min_score"`
}

// Notifications configures delivery.
type Notifications struct {
	Email Email `yaml:"email"`
}

// Email holds the digest mail settings. Empty sender fields fall back to
// the process-wide mail config.
type Email struct {
	Enabled   bool   `yaml:"enabled"`
	Recipient string `yaml:"recipient"`
	Sender    string `yaml:"sender,omitempty"`
	Password  string `yaml:"password,omitempty"`
	SMTPHost  string `yaml:"smtp_host,omitempty"`
	SMTPPort  int    `yaml:"smtp_port,omitempty"`
}
