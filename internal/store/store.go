// Package store persists analysis history in SQLite via GORM and
// aggregates it into the statistics served by /stats and the MCP
// get_threat_statistics tool. Raw text is never stored — only a hash.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/threatlens/threatlens/pkg/threat"
)

// AnalysisRecord is one analyzed text.
type AnalysisRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time `gorm:"index"`
	TextHash   string    `gorm:"size:64;index"`
	RiskScore  int
	IsThreat   bool `gorm:"index"`
	Action     string
	Categories string // comma-joined threat types, for display only
	TopRule    string
	Source     string
	DurationMs int64

	Detections []DetectionRecord `gorm:"foreignKey:RecordID"`
}

// DetectionRecord is one detection within an analysis, kept in its own
// table so category/severity aggregation stays a SQL query.
type DetectionRecord struct {
	ID       uint `gorm:"primaryKey;autoIncrement"`
	RecordID uint `gorm:"index"`
	RuleID   string
	Category string `gorm:"index"`
	Severity string `gorm:"index"`
	Detector string
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string) (*Store, error) {
	return open(path)
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*Store, error) {
	return open("file::memory:?cache=shared")
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if err := db.AutoMigrate(&AnalysisRecord{}, &DetectionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists one analysis result.
func (s *Store) Record(source, text string, result *threat.AnalysisResult) error {
	rec := AnalysisRecord{
		CreatedAt:  result.Timestamp,
		TextHash:   HashText(text),
		RiskScore:  result.RiskScore,
		IsThreat:   result.IsThreat,
		Action:     string(result.Action),
		Categories: strings.Join(result.ThreatTypes, ","),
		Source:     source,
		DurationMs: result.DurationMs,
	}
	if len(result.Detections) > 0 {
		rec.TopRule = result.Detections[0].RuleID
		for _, d := range result.Detections {
			rec.Detections = append(rec.Detections, DetectionRecord{
				RuleID:   d.RuleID,
				Category: d.Category,
				Severity: string(d.Severity),
				Detector: d.Detector,
			})
		}
	}
	return s.db.Create(&rec).Error
}

// Stats aggregates the recorded history.
func (s *Store) Stats(recentLimit int) (*threat.Statistics, error) {
	stats := &threat.Statistics{
		ByCategory: map[string]int64{},
		BySeverity: map[string]int64{},
		ByAction:   map[string]int64{},
	}

	if err := s.db.Model(&AnalysisRecord{}).Count(&stats.TotalAnalyses).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&AnalysisRecord{}).Where("is_threat = ?", true).
		Count(&stats.ThreatsDetected).Error; err != nil {
		return nil, err
	}
	if stats.TotalAnalyses > 0 {
		stats.ThreatRate = float64(stats.ThreatsDetected) / float64(stats.TotalAnalyses)

		var avg *float64
		if err := s.db.Model(&AnalysisRecord{}).
			Select("AVG(risk_score)").Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg != nil {
			stats.AverageRiskScore = *avg
		}
	}

	type countRow struct {
		Key   string
		Count int64
	}

	var byCat []countRow
	if err := s.db.Model(&DetectionRecord{}).
		Select("category AS key, COUNT(*) AS count").
		Group("category").Scan(&byCat).Error; err != nil {
		return nil, err
	}
	for _, row := range byCat {
		stats.ByCategory[row.Key] = row.Count
	}

	var bySev []countRow
	if err := s.db.Model(&DetectionRecord{}).
		Select("severity AS key, COUNT(*) AS count").
		Group("severity").Scan(&bySev).Error; err != nil {
		return nil, err
	}
	for _, row := range bySev {
		stats.BySeverity[row.Key] = row.Count
	}

	var byAction []countRow
	if err := s.db.Model(&AnalysisRecord{}).
		Select("action AS key, COUNT(*) AS count").
		Group("action").Scan(&byAction).Error; err != nil {
		return nil, err
	}
	for _, row := range byAction {
		stats.ByAction[row.Key] = row.Count
	}

	if recentLimit > 0 {
		var recent []AnalysisRecord
		if err := s.db.Where("is_threat = ?", true).
			Order("created_at DESC").Limit(recentLimit).
			Find(&recent).Error; err != nil {
			return nil, err
		}
		for _, r := range recent {
			var cats []string
			if r.Categories != "" {
				cats = strings.Split(r.Categories, ",")
			}
			stats.Recent = append(stats.Recent, threat.RecentDetection{
				Timestamp:  r.CreatedAt,
				RiskScore:  r.RiskScore,
				Action:     threat.Action(r.Action),
				Categories: cats,
				TopRule:    r.TopRule,
				Source:     r.Source,
			})
		}
	}

	return stats, nil
}

// HashText returns the hex SHA-256 of the text. Only the hash is
// persisted, so history can correlate repeats without keeping prompts.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
