package threatlens

import (
	"net/http"

	"github.com/threatlens/threatlens/internal/policy"
	"github.com/threatlens/threatlens/internal/rule"
	"github.com/threatlens/threatlens/pkg/threat"
)

type clientConfig struct {
	endpoint    string
	policy      *policy.SecurityPolicy
	rules       *rule.Set
	rulesDir    string
	maxInputLen int
	httpc       *http.Client
}

// Option configures a Client.
type Option func(*clientConfig)

// WithEndpoint points the client at a ThreatLens API server, e.g.
// "http://127.0.0.1:8787". The local engine remains the fallback.
func WithEndpoint(url string) Option {
	return func(c *clientConfig) { c.endpoint = url }
}

// WithPolicy sets the security policy for local analysis.
func WithPolicy(defaultAction threat.Action, warnThreshold, blockThreshold int) Option {
	return func(c *clientConfig) {
		c.policy = &policy.SecurityPolicy{
			DefaultAction:  defaultAction,
			WarnThreshold:  warnThreshold,
			BlockThreshold: blockThreshold,
		}
	}
}

// WithRulesDir loads rule packs from dir on top of the built-in rules.
func WithRulesDir(dir string) Option {
	return func(c *clientConfig) { c.rulesDir = dir }
}

// WithMaxInputLen overrides the maximum accepted input length in bytes.
func WithMaxInputLen(n int) Option {
	return func(c *clientConfig) { c.maxInputLen = n }
}

// WithHTTPClient replaces the HTTP client used for remote calls.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *clientConfig) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}
