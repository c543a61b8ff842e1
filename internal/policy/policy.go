// Package policy maps risk scores to actions. A SecurityPolicy is
// supplied at construction and immutable for the session.
package policy

import (
	"fmt"

	"github.com/threatlens/threatlens/pkg/threat"
)

// SecurityPolicy holds the thresholds and default action that turn a
// 0–100 risk score into an allow/warn/block verdict.
type SecurityPolicy struct {
	// DefaultAction applies when the score stays below WarnThreshold.
	DefaultAction threat.Action `yaml:"default_action" mapstructure:"default_action"`

	// WarnThreshold is the lowest score that produces a warn verdict.
	WarnThreshold int `yaml:"warn_threshold" mapstructure:"warn_threshold"`

	// BlockThreshold is the lowest score that produces a block verdict.
	// Scores at or above it also mark the result as a threat.
	BlockThreshold int `yaml:"block_threshold" mapstructure:"block_threshold"`
}

// Default returns the stock policy: allow below 40, warn at 40, block at 70.
func Default() *SecurityPolicy {
	return &SecurityPolicy{
		DefaultAction:  threat.ActionAllow,
		WarnThreshold:  40,
		BlockThreshold: 70,
	}
}

// Validate checks threshold ordering and the default action.
func (p *SecurityPolicy) Validate() error {
	if !p.DefaultAction.Valid() {
		return fmt.Errorf("invalid default action %q", p.DefaultAction)
	}
	if p.WarnThreshold < 0 || p.WarnThreshold > 100 {
		return fmt.Errorf("warn threshold %d outside [0,100]", p.WarnThreshold)
	}
	if p.BlockThreshold < 0 || p.BlockThreshold > 100 {
		return fmt.Errorf("block threshold %d outside [0,100]", p.BlockThreshold)
	}
	if p.WarnThreshold > p.BlockThreshold {
		return fmt.Errorf("warn threshold %d exceeds block threshold %d", p.WarnThreshold, p.BlockThreshold)
	}
	return nil
}

// ActionFor maps a risk score to a policy action.
func (p *SecurityPolicy) ActionFor(score int) threat.Action {
	switch {
	case score >= p.BlockThreshold:
		return threat.ActionBlock
	case score >= p.WarnThreshold:
		return threat.ActionWarn
	default:
		return p.DefaultAction
	}
}

// IsThreat reports whether a score crosses the block threshold.
func (p *SecurityPolicy) IsThreat(score int) bool {
	return score >= p.BlockThreshold
}
