package middleware

import (
	"net/http"
	"regexp"
)

// UserAgentPolicy classifies User-Agent strings against an allowlist of
// browser patterns. Unrecognized clients are an advisory signal only;
// scripted traffic against authenticated routes gets audited, not blocked.
type UserAgentPolicy struct {
	allowed []*regexp.Regexp
	bypass  []*regexp.Regexp
}

// DefaultUserAgentPolicy recognizes the mainstream browser families and
// bypasses operational endpoints that legitimate probes hit without a
// browser.
func DefaultUserAgentPolicy() *UserAgentPolicy {
	return NewUserAgentPolicy(
		[]string{
			`Mozilla/5\.0.*Chrome/.*Safari`,
			`Mozilla/5\.0.*Firefox/`,
			`Mozilla/5\.0.*Safari/.*Version/`,
			`Mozilla/5\.0.*Edg/`,
			`Mozilla/5\.0.*OPR/`,
			`AppleWebKit/.*Safari`,
		},
		[]string{
			`^/health`,
			`^/metrics`,
			`^/status`,
		},
	)
}

// NewUserAgentPolicy compiles the allow and bypass patterns. Patterns are
// matched case-insensitively; invalid ones are skipped.
func NewUserAgentPolicy(allowed, bypass []string) *UserAgentPolicy {
	p := &UserAgentPolicy{}
	for _, pattern := range allowed {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			p.allowed = append(p.allowed, re)
		}
	}
	for _, pattern := range bypass {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			p.bypass = append(p.bypass, re)
		}
	}
	return p
}

// Recognized reports whether the request's User-Agent matches a known
// browser family, or the path is exempt from the check. An absent header is
// never recognized.
func (p *UserAgentPolicy) Recognized(r *http.Request) bool {
	for _, re := range p.bypass {
		if re.MatchString(r.URL.Path) {
			return true
		}
	}

	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return false
	}
	for _, re := range p.allowed {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}
