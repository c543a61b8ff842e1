// Package threat defines the public result types of the ThreatLens
// detection engine. These types appear on every surface: the Go SDK,
// the REST API wire format, and the MCP tool results.
//
// ThreatLens does not hide the reasoning behind a verdict. Every
// AnalysisResult carries the individual detections that contributed to
// the score, enabling explainable decisions and audit trails.
package threat

import "time"

// Severity classifies how damaging a matched rule is considered.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the base risk score contributed by a detection of
// this severity. A single high-severity match crosses the default
// block threshold of 70.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 95
	case SeverityHigh:
		return 75
	case SeverityMedium:
		return 50
	case SeverityLow:
		return 25
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns a numeric ordering for severities (higher = worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Action is the policy outcome for an analyzed text.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Valid reports whether a is a known policy action.
func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionWarn, ActionBlock:
		return true
	}
	return false
}

// Detection is a single rule or signal match inside an analyzed text.
type Detection struct {
	// RuleID identifies the rule or built-in signal that fired
	// (e.g. "pi-ignore-instructions", "secret-aws-access-key").
	RuleID string `json:"rule_id"`

	// Category groups related detections (e.g. "prompt_injection").
	Category string `json:"category"`

	// Severity of this individual detection.
	Severity Severity `json:"severity"`

	// Confidence is 0.0–1.0 how certain the detector is.
	Confidence float64 `json:"confidence"`

	// Detector names the engine layer that produced this detection:
	// "pattern", "secret", "evasion", "payload".
	Detector string `json:"detector"`

	// Snippet is a short excerpt of the matched text, truncated and
	// redacted before it leaves the engine.
	Snippet string `json:"snippet,omitempty"`

	// Reason is a human-readable explanation of why this fired.
	Reason string `json:"reason"`
}

// AnalysisResult is the outcome of analyzing one text.
type AnalysisResult struct {
	// IsThreat is true when RiskScore reaches the policy block threshold.
	IsThreat bool `json:"is_threat"`

	// RiskScore summarizes how threatening the text appears, 0–100.
	RiskScore int `json:"risk_score"`

	// Confidence is 0.0–1.0 how certain the engine is in the verdict.
	Confidence float64 `json:"confidence"`

	// ThreatTypes lists the distinct detection categories, ordered by
	// severity (worst first), then alphabetically.
	ThreatTypes []string `json:"threat_types"`

	// Action is the policy decision derived from RiskScore.
	Action Action `json:"action"`

	// Detections are the individual matches behind the score.
	Detections []Detection `json:"detections,omitempty"`

	// Timestamp records when the analysis ran.
	Timestamp time.Time `json:"timestamp"`

	// DurationMs is the wall-clock analysis time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// Statistics summarizes analyses recorded by a ThreatLens instance.
type Statistics struct {
	TotalAnalyses    int64              `json:"total_analyses"`
	ThreatsDetected  int64              `json:"threats_detected"`
	ThreatRate       float64            `json:"threat_rate"`
	AverageRiskScore float64            `json:"average_risk_score"`
	ByCategory       map[string]int64   `json:"by_category"`
	BySeverity       map[string]int64   `json:"by_severity"`
	ByAction         map[string]int64   `json:"by_action"`
	Recent           []RecentDetection  `json:"recent,omitempty"`
	Runtime          *RuntimeStatistics `json:"runtime,omitempty"`
}

// RecentDetection is one row of recent threat history.
type RecentDetection struct {
	Timestamp  time.Time `json:"timestamp"`
	RiskScore  int       `json:"risk_score"`
	Action     Action    `json:"action"`
	Categories []string  `json:"categories"`
	TopRule    string    `json:"top_rule,omitempty"`
	Source     string    `json:"source"`
}

// RuntimeStatistics describes the serving process itself.
type RuntimeStatistics struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryRSS     uint64  `json:"memory_rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
}
