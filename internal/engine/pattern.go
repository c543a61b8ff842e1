package engine

import (
	"github.com/threatlens/threatlens/internal/rule"
	"github.com/threatlens/threatlens/pkg/threat"
)

// PatternDetector evaluates the loaded rule set against the canonical
// text. This is layer 0 — the fastest and most configurable layer, and
// the one rule packs extend.
type PatternDetector struct {
	rules *rule.Set
}

// NewPatternDetector creates a pattern detector over a compiled rule set.
func NewPatternDetector(rules *rule.Set) *PatternDetector {
	return &PatternDetector{rules: rules}
}

func (d *PatternDetector) Name() string { return "pattern" }

// Detect returns one detection per matching rule. A rule with several
// patterns contributes at most one detection: the first pattern hit.
func (d *PatternDetector) Detect(ctx *TextContext) []threat.Detection {
	var detections []threat.Detection
	for i := range d.rules.Rules() {
		r := &d.rules.Rules()[i]
		for j := range r.Patterns {
			match, ok := r.Patterns[j].Match(ctx.Canonical)
			if !ok {
				continue
			}
			detections = append(detections, threat.Detection{
				RuleID:     r.ID,
				Category:   r.Category,
				Severity:   r.Severity,
				Confidence: r.Confidence,
				Detector:   d.Name(),
				Snippet:    snippet(match),
				Reason:     r.Reason,
			})
			break
		}
	}
	return detections
}
