package engine

import (
	"regexp"

	"github.com/threatlens/threatlens/pkg/threat"
)

// secretSignal is one built-in credential or PII pattern. These ship in
// code rather than rule packs because redaction and the leak categories
// depend on them being present in every deployment.
type secretSignal struct {
	id         string
	category   string
	severity   threat.Severity
	confidence float64
	reason     string
	re         *regexp.Regexp
	verify     func(match string) bool // optional post-match check
}

var secretSignals = []secretSignal{
	{
		id:         "secret-private-key",
		category:   "credential_leak",
		severity:   threat.SeverityCritical,
		confidence: 0.95,
		reason:     "SSH/PGP private key material detected",
		re:         regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),
	},
	{
		id:         "secret-aws-access-key",
		category:   "credential_leak",
		severity:   threat.SeverityCritical,
		confidence: 0.90,
		reason:     "AWS access key ID detected",
		re:         regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	},
	{
		id:         "secret-aws-assignment",
		category:   "credential_leak",
		severity:   threat.SeverityHigh,
		confidence: 0.85,
		reason:     "AWS credential assignment detected",
		re:         regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}`),
	},
	{
		id:         "secret-github-token",
		category:   "credential_leak",
		severity:   threat.SeverityHigh,
		confidence: 0.90,
		reason:     "GitHub token detected",
		re:         regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36}\b`),
	},
	{
		id:         "secret-slack-token",
		category:   "credential_leak",
		severity:   threat.SeverityHigh,
		confidence: 0.90,
		reason:     "Slack token detected",
		re:         regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),
	},
	{
		id:         "secret-stripe-key",
		category:   "credential_leak",
		severity:   threat.SeverityHigh,
		confidence: 0.90,
		reason:     "Stripe secret key detected",
		re:         regexp.MustCompile(`\b[sr]k_live_[0-9a-zA-Z]{24}\b`),
	},
	{
		id:         "secret-bearer-token",
		category:   "credential_leak",
		severity:   threat.SeverityMedium,
		confidence: 0.70,
		reason:     "Bearer token detected",
		re:         regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_.-]{20,}`),
	},
	{
		id:         "secret-basic-auth-url",
		category:   "credential_leak",
		severity:   threat.SeverityMedium,
		confidence: 0.75,
		reason:     "Basic auth credentials embedded in URL",
		re:         regexp.MustCompile(`https?://[^/\s:]+:[^@\s]+@`),
	},
	{
		id:         "secret-generic-assignment",
		category:   "credential_leak",
		severity:   threat.SeverityMedium,
		confidence: 0.65,
		reason:     "API key or secret assignment detected",
		re:         regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|password|passwd)\s*[=:]\s*['"]?[A-Za-z0-9_\-/+=]{12,}`),
	},
	{
		id:         "pii-email",
		category:   "pii_leak",
		severity:   threat.SeverityLow,
		confidence: 0.60,
		reason:     "Email address detected",
		re:         regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
	{
		id:         "pii-ssn",
		category:   "pii_leak",
		severity:   threat.SeverityMedium,
		confidence: 0.70,
		reason:     "US social security number pattern detected",
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		id:         "pii-card-number",
		category:   "pii_leak",
		severity:   threat.SeverityMedium,
		confidence: 0.75,
		reason:     "Payment card number detected",
		re:         regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
		verify:     luhnValid,
	},
}

// SecretDetector finds credentials and PII in text. It never includes
// the matched value in its detections — only the signal that fired.
type SecretDetector struct {
	signals []secretSignal
}

// NewSecretDetector creates a detector over the built-in signal table.
func NewSecretDetector() *SecretDetector {
	return &SecretDetector{signals: secretSignals}
}

func (d *SecretDetector) Name() string { return "secret" }

func (d *SecretDetector) Detect(ctx *TextContext) []threat.Detection {
	var detections []threat.Detection
	for i := range d.signals {
		sig := &d.signals[i]
		match := sig.re.FindString(ctx.Canonical)
		if match == "" {
			continue
		}
		if sig.verify != nil && !sig.verify(match) {
			continue
		}
		detections = append(detections, threat.Detection{
			RuleID:     sig.id,
			Category:   sig.category,
			Severity:   sig.severity,
			Confidence: sig.confidence,
			Detector:   d.Name(),
			Reason:     sig.reason,
		})
	}
	return detections
}

// luhnValid runs the Luhn checksum over the digits of a candidate card
// number, cutting false positives from arbitrary digit runs.
func luhnValid(candidate string) bool {
	var digits []int
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
