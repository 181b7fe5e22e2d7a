package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/analysis"
)

// AIHandler exposes direct trust score analysis.
type AIHandler struct {
	analyzer *analysis.Analyzer
}

// NewAIHandler constructs an AIHandler.
func NewAIHandler(analyzer *analysis.Analyzer) *AIHandler {
	return &AIHandler{analyzer: analyzer}
}

// TrustScore scores the posted documents and loan parameters. Upstream
// failures yield the deterministic fallback, never an error.
func (h *AIHandler) TrustScore(c *gin.Context) {
	var body analysis.Input
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	outcome := h.analyzer.Analyze(c.Request.Context(), body)
	if outcome.Err != nil {
		log.WithError(outcome.Err).Debug("trust score served from fallback")
	}
	result := analysis.Sanitize(outcome.Result)
	c.JSON(http.StatusOK, gin.H{
		"trustScore":      result.TrustScore,
		"summaryBullets":  result.SummaryBullets,
		"riskFactors":     result.RiskFactors,
		"recommendations": result.Recommendations,
		"source":          outcome.Source,
	})
}
