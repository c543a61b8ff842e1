package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threatlens/threatlens/internal/engine"
	"github.com/threatlens/threatlens/pkg/threat"
)

type analyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

type batchRequest struct {
	Texts []string `json:"texts" binding:"required,min=1"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "text field is required"})
		return
	}

	result, err := s.analyze(c.Request.Context(), req.Text, "rest")
	if err != nil {
		c.JSON(statusForAnalyzeError(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalyzeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "texts field is required and must be non-empty"})
		return
	}
	if len(req.Texts) > s.maxBatchSize {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "batch exceeds maximum size"})
		return
	}

	results := make([]*threat.AnalysisResult, 0, len(req.Texts))
	for _, text := range req.Texts {
		result, err := s.analyze(c.Request.Context(), text, "rest")
		if err != nil {
			c.JSON(statusForAnalyzeError(err), errorResponse{Error: err.Error()})
			return
		}
		results = append(results, result)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleStats(c *gin.Context) {
	var stats *threat.Statistics
	if s.store != nil {
		var err error
		stats, err = s.store.Stats(s.recentLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
	} else {
		stats = &threat.Statistics{
			ByCategory: map[string]int64{},
			BySeverity: map[string]int64{},
			ByAction:   map[string]int64{},
		}
	}
	stats.Runtime = s.runtimeStats()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"rules":          s.engine.Rules().Len(),
		"rules_revision": s.engine.Rules().Revision(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func statusForAnalyzeError(err error) int {
	if errors.Is(err, engine.ErrEmptyInput) || errors.Is(err, engine.ErrInputTooLong) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
