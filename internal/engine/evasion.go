package engine

import (
	"fmt"
	"regexp"

	"github.com/threatlens/threatlens/pkg/threat"
)

const (
	// minBase64BlobLen is the shortest base64 run worth flagging.
	// Shorter runs are routinely produced by ordinary tokens.
	minBase64BlobLen = 120

	evasionCategory = "encoding_evasion"
)

var (
	base64RunRe = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)
	hexEscapeRe = regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){6,}`)
	uniEscapeRe = regexp.MustCompile(`(\\u[0-9a-fA-F]{4}){6,}`)
	decodeAskRe = regexp.MustCompile(`(?i)\b(decode|unscramble|decrypt)\s+(this|the\s+following|it)\b.{0,40}(execute|run|follow|obey|instructions?)`)
)

// EvasionDetector flags attempts to hide payloads from pattern
// matching: Unicode smuggling found during normalization, long encoded
// blobs, and decode-then-obey phrasing.
type EvasionDetector struct{}

// NewEvasionDetector creates the evasion detector.
func NewEvasionDetector() *EvasionDetector { return &EvasionDetector{} }

func (d *EvasionDetector) Name() string { return "evasion" }

func (d *EvasionDetector) Detect(ctx *TextContext) []threat.Detection {
	var detections []threat.Detection

	// One detection per smuggling category, not per character: a
	// hundred zero-width spaces are one technique, not a hundred.
	seen := map[string]bool{}
	for _, f := range ctx.Scan.Findings {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true

		sev := threat.SeverityHigh
		conf := 0.85
		if f.Severity == "medium" {
			sev = threat.SeverityMedium
			conf = 0.70
		}
		detections = append(detections, threat.Detection{
			RuleID:     "evasion-" + f.Category,
			Category:   evasionCategory,
			Severity:   sev,
			Confidence: conf,
			Detector:   d.Name(),
			Reason:     f.Description,
		})
	}

	if blobLen := largestBase64Run(ctx.Canonical); blobLen >= minBase64BlobLen {
		detections = append(detections, threat.Detection{
			RuleID:     "evasion-base64-blob",
			Category:   evasionCategory,
			Severity:   threat.SeverityMedium,
			Confidence: 0.70,
			Detector:   d.Name(),
			Reason:     fmt.Sprintf("long base64-encoded payload (%d chars) may hide instructions", blobLen),
		})
	}

	if hexEscapeRe.MatchString(ctx.Canonical) || uniEscapeRe.MatchString(ctx.Canonical) {
		detections = append(detections, threat.Detection{
			RuleID:     "evasion-escape-sequences",
			Category:   evasionCategory,
			Severity:   threat.SeverityMedium,
			Confidence: 0.65,
			Detector:   d.Name(),
			Reason:     "run of hex/unicode escape sequences may hide instructions",
		})
	}

	if match := decodeAskRe.FindString(ctx.Canonical); match != "" {
		detections = append(detections, threat.Detection{
			RuleID:     "evasion-decode-and-obey",
			Category:   evasionCategory,
			Severity:   threat.SeverityHigh,
			Confidence: 0.80,
			Detector:   d.Name(),
			Snippet:    snippet(match),
			Reason:     "text asks the model to decode hidden content and act on it",
		})
	}

	return detections
}

// largestBase64Run returns the length of the longest base64-looking run
// in the text, 0 when none reaches the scan floor.
func largestBase64Run(text string) int {
	longest := 0
	for _, m := range base64RunRe.FindAllString(text, -1) {
		if len(m) > longest {
			longest = len(m)
		}
	}
	return longest
}
