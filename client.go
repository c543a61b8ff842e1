// Package threatlens is the Go SDK for the ThreatLens threat monitor.
//
// A Client analyzes text for prompt injection, jailbreaks, and
// PII/credential leakage. By default analysis runs in-process against
// the built-in rules; configure an endpoint to delegate to a ThreatLens
// API server, with automatic fallback to the local engine when the
// server is unreachable.
//
//	client, err := threatlens.New()
//	result, err := client.Analyze(ctx, "Ignore all previous instructions…")
//	if result.IsThreat { … }
package threatlens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/threatlens/threatlens/internal/engine"
	"github.com/threatlens/threatlens/internal/policy"
	"github.com/threatlens/threatlens/internal/rule"
	"github.com/threatlens/threatlens/pkg/threat"
)

// Client analyzes text locally or against a remote ThreatLens API.
type Client struct {
	engine   *engine.Engine
	endpoint string
	httpc    *http.Client

	// local tallies, reported by Stats when no endpoint is configured
	analyzed int64
	threats  int64
}

// New builds a client. Without options it loads the built-in rules and
// default policy and analyzes entirely in-process.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		policy: policy.Default(),
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rules := cfg.rules
	if rules == nil {
		var err error
		if cfg.rulesDir != "" {
			rules, _, err = rule.LoadDir(cfg.rulesDir)
		} else {
			rules, _, err = rule.LoadDir("") // built-in set only
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
	}

	var engOpts []engine.Option
	if cfg.maxInputLen > 0 {
		engOpts = append(engOpts, engine.WithMaxInputLen(cfg.maxInputLen))
	}
	eng, err := engine.New(rules, cfg.policy, engOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		engine:   eng,
		endpoint: cfg.endpoint,
		httpc:    cfg.httpc,
	}, nil
}

// Analyze classifies one text. With an endpoint configured the request
// goes to the API server; if the server is unreachable the local
// engine answers instead.
func (c *Client) Analyze(ctx context.Context, text string) (*threat.AnalysisResult, error) {
	if c.endpoint != "" {
		result, err := c.analyzeRemote(ctx, text)
		if err == nil {
			c.tally(result)
			return result, nil
		}
		if !isTransportError(err) {
			return nil, err
		}
		// API unreachable: fall back to the local pattern scan.
	}

	result, err := c.engine.Analyze(text)
	if err != nil {
		return nil, err
	}
	c.tally(result)
	return result, nil
}

// AnalyzeBatch classifies each text in order.
func (c *Client) AnalyzeBatch(ctx context.Context, texts []string) ([]*threat.AnalysisResult, error) {
	results := make([]*threat.AnalysisResult, 0, len(texts))
	for i, text := range texts {
		r, err := c.Analyze(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Stats returns aggregated statistics: the server's when an endpoint is
// configured and reachable, this client's own tallies otherwise.
func (c *Client) Stats(ctx context.Context) (*threat.Statistics, error) {
	if c.endpoint != "" {
		stats, err := c.statsRemote(ctx)
		if err == nil {
			return stats, nil
		}
		if !isTransportError(err) {
			return nil, err
		}
	}

	total := atomic.LoadInt64(&c.analyzed)
	threats := atomic.LoadInt64(&c.threats)
	stats := &threat.Statistics{
		TotalAnalyses:   total,
		ThreatsDetected: threats,
		ByCategory:      map[string]int64{},
		BySeverity:      map[string]int64{},
		ByAction:        map[string]int64{},
	}
	if total > 0 {
		stats.ThreatRate = float64(threats) / float64(total)
	}
	return stats, nil
}

func (c *Client) tally(result *threat.AnalysisResult) {
	atomic.AddInt64(&c.analyzed, 1)
	if result.IsThreat {
		atomic.AddInt64(&c.threats, 1)
	}
}

// --- remote calls ---

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.status, e.msg)
}

func (c *Client) analyzeRemote(ctx context.Context, text string) (*threat.AnalysisResult, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, msg: string(data)}
	}

	var result threat.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return &result, nil
}

func (c *Client) statsRemote(ctx context.Context) (*threat.Statistics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/stats", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, msg: string(data)}
	}

	var stats threat.Statistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}
	return &stats, nil
}

// transportError marks failures worth falling back on: connection
// refused, timeouts, truncated bodies. API-level errors (4xx) are not —
// the server answered, and local analysis would mask the real problem.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
