package screen

import (
	"net/http"
	"strings"
)

// blockKind names the anti-bot wall an apply page answered with.
type blockKind string

const (
	blockNone       blockKind = ""
	blockCloudflare blockKind = "cloudflare"
	blockCaptcha    blockKind = "captcha"
	blockJSShell    blockKind = "js_shell"
)

// shellBytes is the size under which a noscript page counts as a JS shell.
const shellBytes = 2000

// detectBlock reports whether resp is a bot wall rather than the posting.
// A walled page says nothing about whether the job is still open.
func detectBlock(resp *http.Response, body []byte) blockKind {
	if resp == nil {
		return blockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		h := resp.Header
		if h.Get("Cf-Ray") != "" || h.Get("Cf-Cache-Status") != "" || strings.EqualFold(h.Get("Server"), "cloudflare") {
			return blockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return blockCloudflare
	case strings.Contains(lower, "captcha"):
		return blockCaptcha
	case len(body) < shellBytes && strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript"),
		len(body) < shellBytes && strings.Contains(lower, `meta http-equiv="refresh"`):
		return blockJSShell
	}
	return blockNone
}
