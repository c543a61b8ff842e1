// Package engine runs the detection pipeline: every detector inspects
// the same TextContext and emits detections, which the scorer folds
// into a single 0–100 risk score and policy verdict.
//
// The engine is stateless between calls. Given the same rule set and
// policy, Analyze is deterministic: identical input yields an identical
// score, detections, and action.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/threatlens/threatlens/internal/normalize"
	"github.com/threatlens/threatlens/internal/policy"
	"github.com/threatlens/threatlens/internal/rule"
	"github.com/threatlens/threatlens/pkg/threat"
)

// DefaultMaxInputLen caps analyzed text at 64 KiB.
const DefaultMaxInputLen = 64 * 1024

var (
	// ErrEmptyInput is returned when the text to analyze is empty.
	ErrEmptyInput = errors.New("input text is empty")

	// ErrInputTooLong is returned when the text exceeds the configured limit.
	ErrInputTooLong = errors.New("input text exceeds maximum length")
)

// TextContext carries the input and its canonical form through all
// detectors. Detectors read from it; none mutate it.
type TextContext struct {
	Raw       string
	Canonical string
	Scan      normalize.Scanned
}

// Detector is the interface every detection layer implements.
type Detector interface {
	// Name identifies the detector ("pattern", "secret", "evasion", "payload").
	Name() string

	// Detect inspects the text and returns zero or more detections.
	Detect(ctx *TextContext) []threat.Detection
}

// Engine evaluates text against an ordered set of detectors.
type Engine struct {
	detectors []Detector
	policy    *policy.SecurityPolicy
	rules     *rule.Set
	maxInput  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxInputLen overrides the maximum accepted input length in bytes.
func WithMaxInputLen(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInput = n
		}
	}
}

// WithDetectors replaces the standard detector pipeline. Used by tests
// and by callers that want a reduced pipeline.
func WithDetectors(detectors ...Detector) Option {
	return func(e *Engine) { e.detectors = detectors }
}

// New builds an engine with the standard pipeline:
// pattern → secret → evasion → payload.
func New(rules *rule.Set, pol *policy.SecurityPolicy, opts ...Option) (*Engine, error) {
	if rules == nil {
		return nil, errors.New("nil rule set")
	}
	if pol == nil {
		pol = policy.Default()
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	e := &Engine{
		policy:   pol,
		rules:    rules,
		maxInput: DefaultMaxInputLen,
		detectors: []Detector{
			NewPatternDetector(rules),
			NewSecretDetector(),
			NewEvasionDetector(),
			NewPayloadDetector(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() *rule.Set { return e.rules }

// Policy returns the engine's policy.
func (e *Engine) Policy() *policy.SecurityPolicy { return e.policy }

// Analyze runs the full pipeline over one text and returns the result.
// Empty or over-length input is rejected synchronously.
func (e *Engine) Analyze(text string) (*threat.AnalysisResult, error) {
	start := time.Now()

	if text == "" {
		return nil, ErrEmptyInput
	}
	if len(text) > e.maxInput {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLong, len(text), e.maxInput)
	}

	scan := normalize.Scan(text)
	ctx := &TextContext{
		Raw:       text,
		Canonical: scan.Canonical,
		Scan:      scan,
	}

	var detections []threat.Detection
	for _, d := range e.detectors {
		detections = append(detections, d.Detect(ctx)...)
	}

	score := Score(detections)
	result := &threat.AnalysisResult{
		IsThreat:    e.policy.IsThreat(score),
		RiskScore:   score,
		Confidence:  Confidence(detections),
		ThreatTypes: threatTypes(detections),
		Action:      e.policy.ActionFor(score),
		Detections:  detections,
		Timestamp:   start.UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	return result, nil
}

// AnalyzeBatch maps Analyze over texts. Items are validated
// individually: one bad item fails the batch with its index.
func (e *Engine) AnalyzeBatch(texts []string) ([]*threat.AnalysisResult, error) {
	if len(texts) == 0 {
		return nil, errors.New("empty batch")
	}
	results := make([]*threat.AnalysisResult, 0, len(texts))
	for i, text := range texts {
		r, err := e.Analyze(text)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// threatTypes collects distinct detection categories, ordered by worst
// severity first, then alphabetically. The ordering is deterministic.
func threatTypes(detections []threat.Detection) []string {
	worst := map[string]threat.Severity{}
	for _, d := range detections {
		if cur, ok := worst[d.Category]; !ok || d.Severity.Rank() > cur.Rank() {
			worst[d.Category] = d.Severity
		}
	}

	types := make([]string, 0, len(worst))
	for cat := range worst {
		types = append(types, cat)
	}
	sort.Slice(types, func(i, j int) bool {
		ri, rj := worst[types[i]].Rank(), worst[types[j]].Rank()
		if ri != rj {
			return ri > rj
		}
		return types[i] < types[j]
	})
	return types
}

// snippet truncates matched text for inclusion in a detection. The cut
// backs up to a rune boundary so multi-byte text stays valid UTF-8.
func snippet(match string) string {
	const maxLen = 80
	if len(match) <= maxLen {
		return match
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(match[cut]) {
		cut--
	}
	return match[:cut] + "…"
}
