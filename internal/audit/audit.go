// Package audit appends one JSON line per analysis to the audit log.
// Text excerpts are redacted before they touch disk.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/threatlens/threatlens/internal/redact"
	"github.com/threatlens/threatlens/pkg/threat"
)

// Event is one audit log record.
type Event struct {
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"` // "rest", "mcp", "cli", "sdk"
	TextExcerpt string   `json:"text_excerpt,omitempty"`
	RiskScore   int      `json:"risk_score"`
	IsThreat    bool     `json:"is_threat"`
	Action      string   `json:"action"`
	ThreatTypes []string `json:"threat_types,omitempty"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

// Logger writes audit events as JSONL, safe for concurrent use.
type Logger struct {
	file *os.File
	mu   sync.Mutex
}

// New opens (or creates) the audit log at path, in append mode.
func New(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &Logger{file: file}, nil
}

// Log writes one event, redacting the excerpt and error first.
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.TextExcerpt = redact.Snippet(event.TextExcerpt, 160)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

// LogResult builds and writes an event from an analysis result.
func (l *Logger) LogResult(source, text string, result *threat.AnalysisResult) error {
	ruleIDs := make([]string, 0, len(result.Detections))
	for _, d := range result.Detections {
		ruleIDs = append(ruleIDs, d.RuleID)
	}
	return l.Log(Event{
		Timestamp:   result.Timestamp.Format(time.RFC3339),
		Source:      source,
		TextExcerpt: text,
		RiskScore:   result.RiskScore,
		IsThreat:    result.IsThreat,
		Action:      string(result.Action),
		ThreatTypes: result.ThreatTypes,
		RuleIDs:     ruleIDs,
		DurationMs:  result.DurationMs,
	})
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
