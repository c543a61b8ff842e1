// Package rule loads and validates the YAML detection rules that drive
// the pattern matcher. Rules are compiled once at load time and are
// immutable afterwards; a malformed rule file fails the whole load
// rather than surfacing errors per request.
package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/threatlens/threatlens/pkg/threat"
)

// Rule is a named detection pattern with an associated category and severity.
type Rule struct {
	ID         string          `yaml:"id"`
	Category   string          `yaml:"category"`
	Severity   threat.Severity `yaml:"severity"`
	Confidence float64         `yaml:"confidence,omitempty"`
	Patterns   []Pattern       `yaml:"patterns"`
	Reason     string          `yaml:"reason,omitempty"`
	Metadata   Metadata        `yaml:"metadata,omitempty"`
}

// Pattern is a single regex within a rule. Matching is case-insensitive
// by convention; flags can override that.
type Pattern struct {
	Regex string `yaml:"regex"`
	// Flags is a subset of "ims". When empty, "i" is assumed.
	Flags string `yaml:"flags,omitempty"`

	compiled *regexp.Regexp
}

// Metadata carries provenance for a rule.
type Metadata struct {
	Source      string   `yaml:"source,omitempty"`
	Description string   `yaml:"description,omitempty"`
	References  []string `yaml:"references,omitempty"`
}

// Match tests the pattern against text. Returns the matched substring
// and true on a hit.
func (p *Pattern) Match(text string) (string, bool) {
	if p.compiled == nil {
		return "", false
	}
	loc := p.compiled.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[0]:loc[1]], true
}

// compile builds the pattern's regexp, applying the default
// case-insensitive flag unless flags are given explicitly.
func (p *Pattern) compile() error {
	flags := p.Flags
	if flags == "" {
		flags = "i"
	}
	for _, f := range flags {
		if !strings.ContainsRune("ims", f) {
			return fmt.Errorf("unsupported pattern flag %q", string(f))
		}
	}
	re, err := regexp.Compile("(?" + flags + ")" + p.Regex)
	if err != nil {
		return err
	}
	p.compiled = re
	return nil
}

// validate checks a single rule and compiles its patterns.
func (r *Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.Category == "" {
		return fmt.Errorf("rule %s: missing category", r.ID)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %s: confidence %v outside [0,1]", r.ID, r.Confidence)
	}
	if r.Confidence == 0 {
		r.Confidence = defaultConfidence
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %s: no patterns", r.ID)
	}
	for i := range r.Patterns {
		if r.Patterns[i].Regex == "" {
			return fmt.Errorf("rule %s: pattern %d is empty", r.ID, i)
		}
		if err := r.Patterns[i].compile(); err != nil {
			return fmt.Errorf("rule %s: pattern %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// defaultConfidence is assigned to rules that don't declare one.
const defaultConfidence = 0.80
