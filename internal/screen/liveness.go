package screen

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/jobpipe/internal/resilience"
)

const (
	livenessUserAgent = "jobpipe/1.0 (+apply-url check)"
	livenessScanBytes = 50_000
)

var expiredPhrases = []string{
	"this job has expired",
	"this position has been filled",
	"no longer available",
	"no longer accepting applications",
	"job not found",
	"posting has been removed",
	"this listing has expired",
	"position is no longer available",
	"job has been closed",
	"this job is no longer active",
	"the job you are looking for is no longer available",
	"this opportunity is closed",
}

// LivenessChecker decides whether an apply URL still points at an open
// posting. Network trouble gives the posting the benefit of the doubt.
type LivenessChecker struct {
	client *http.Client
	budget resilience.Budget
}

// NewLivenessChecker returns a checker using client, bounded by budget.
func NewLivenessChecker(client *http.Client, budget resilience.Budget) *LivenessChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &LivenessChecker{client: client, budget: budget}
}

// Check returns whether rawURL looks alive and a short reason.
func (c *LivenessChecker) Check(ctx context.Context, rawURL string) (bool, string) {
	if !strings.HasPrefix(rawURL, "http") {
		return true, "no_url"
	}

	type verdict struct {
		alive  bool
		reason string
	}
	v, err := resilience.Invoke(ctx, resilience.Op{Name: "liveness: get", Scope: resilience.ScopeItem}, c.budget,
		func(ctx context.Context) (verdict, error) {
			alive, reason, err := c.check(ctx, rawURL)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return verdict{true, "timeout"}, nil
			}
			return verdict{alive, reason}, err
		})
	if err != nil {
		return true, "error"
	}
	return v.alive, v.reason
}

func (c *LivenessChecker) check(ctx context.Context, rawURL string) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, "", err
	}
	req.Header.Set("User-Agent", livenessUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return false, "http_" + strconv.Itoa(resp.StatusCode), nil
	}

	if resp.StatusCode == http.StatusOK && resp.Request != nil && redirectedHome(rawURL, resp.Request.URL) {
		return false, "redirect_to_homepage", nil
	}

	if resp.StatusCode != http.StatusOK {
		if kind := detectBlock(resp, nil); kind != blockNone {
			return true, "blocked:" + string(kind), nil
		}
		return true, "http_" + strconv.Itoa(resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, livenessScanBytes))
	if err != nil {
		return true, "ok", nil
	}
	content := strings.ToLower(string(body))
	for _, phrase := range expiredPhrases {
		if strings.Contains(content, phrase) {
			return false, "content:" + phrase, nil
		}
	}
	if kind := detectBlock(resp, body); kind != blockNone {
		return true, "blocked:" + string(kind), nil
	}
	return true, "ok", nil
}

func redirectedHome(original string, final *url.URL) bool {
	if final == nil || final.String() == original {
		return false
	}
	return strings.TrimRight(final.Path, "/") == ""
}
