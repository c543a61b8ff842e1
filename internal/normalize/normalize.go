// Package normalize canonicalizes input text before rule matching and
// flags Unicode smuggling along the way. Matching against the canonical
// form means zero-width characters cannot split a keyword to dodge a
// regex, and the findings themselves feed the evasion detector.
package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Finding is a single Unicode smuggling indicator found in the input.
type Finding struct {
	Category    string // "zero-width", "bidi-override", "tag-char", "control-char", "invalid-utf8"
	Description string
	Position    int    // byte offset in the input
	Codepoint   string // e.g. "U+200B"
	Severity    string // "high" or "medium"
}

// Scanned holds the canonical form of an input plus anything suspicious
// that was stripped to produce it.
type Scanned struct {
	Raw       string
	Canonical string // input with smuggling characters removed
	Findings  []Finding
}

// Clean reports whether the input contained no smuggling indicators.
func (s *Scanned) Clean() bool { return len(s.Findings) == 0 }

// Scan walks the input rune by rune, removing characters that can hide
// or reorder displayed text and recording a finding for each.
func Scan(input string) Scanned {
	result := Scanned{Raw: input}
	var canonical strings.Builder
	canonical.Grow(len(input))

	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])

		if r == utf8.RuneError && size == 1 {
			result.Findings = append(result.Findings, Finding{
				Category:    "invalid-utf8",
				Description: "invalid UTF-8 byte sequence",
				Position:    i,
				Codepoint:   fmt.Sprintf("0x%02X", input[i]),
				Severity:    "high",
			})
			i++
			continue
		}

		if f, found := classifyRune(r, i); found {
			result.Findings = append(result.Findings, f)
			i += size
			continue
		}

		canonical.WriteRune(r)
		i += size
	}

	result.Canonical = canonical.String()
	return result
}

func classifyRune(r rune, pos int) (Finding, bool) {
	cp := fmt.Sprintf("U+%04X", r)

	if isZeroWidth(r) {
		return Finding{
			Category:    "zero-width",
			Description: fmt.Sprintf("zero-width character %s can hide content or split keywords", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    "high",
		}, true
	}

	if isBidiOverride(r) {
		return Finding{
			Category:    "bidi-override",
			Description: fmt.Sprintf("bidirectional override %s makes displayed text differ from logical text", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    "high",
		}, true
	}

	if isTagCharacter(r) {
		return Finding{
			Category:    "tag-char",
			Description: fmt.Sprintf("Unicode tag character %s can smuggle hidden instructions", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    "high",
		}, true
	}

	if isUnsafeControl(r) {
		return Finding{
			Category:    "control-char",
			Description: fmt.Sprintf("control character %s should not appear in prompt text", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    "medium",
		}, true
	}

	return Finding{}, false
}

func isZeroWidth(r rune) bool {
	switch r {
	case 0x200B, // zero width space
		0x200C, // zero width non-joiner
		0x200D, // zero width joiner
		0x2060, // word joiner
		0xFEFF: // zero width no-break space / BOM
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	switch r {
	case 0x202A, 0x202B, 0x202C, 0x202D, 0x202E, // embedding/override controls
		0x2066, 0x2067, 0x2068, 0x2069: // isolate controls
		return true
	}
	return false
}

func isTagCharacter(r rune) bool {
	return r >= 0xE0001 && r <= 0xE007F
}

func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r < 0x20 || r == 0x7F
}
