package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/vision"
)

// DocumentHandler serves document analysis, storage and history.
type DocumentHandler struct {
	documents *document.Service
	vision    *vision.Client
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(documents *document.Service, visionClient *vision.Client) *DocumentHandler {
	return &DocumentHandler{documents: documents, vision: visionClient}
}

type analyzeDocumentRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename"`
}

// Analyze extracts financial details from a document image.
func (h *DocumentHandler) Analyze(c *gin.Context) {
	var body analyzeDocumentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, errAnalyze := h.vision.Analyze(c.Request.Context(), body.Image, body.Filename)
	if errAnalyze != nil {
		if errors.Is(errAnalyze, apperr.ErrUpstreamAnalysis) {
			log.WithError(errAnalyze).WithField("filename", body.Filename).Warn("document analysis failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": errAnalyze.Error(), "fallback": vision.ErrorFallback()})
			return
		}
		respondError(c, errAnalyze, "Failed to analyze document")
		return
	}
	c.JSON(http.StatusOK, result)
}

type uploadDocumentRequest struct {
	LoanRequestID *uint64  `json:"loanRequestId"`
	VaultRef      string   `json:"vaultRef"`
	Filename      string   `json:"filename"`
	Category      string   `json:"category"`
	DocumentType  string   `json:"documentType"`
	KeyDetails    []string `json:"keyDetails"`
	Summary       string   `json:"summary"`
	Confidence    *float64 `json:"confidence"`
	RawOutput     string   `json:"rawOutput"`
}

// Upload records an analyzed document.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body uploadDocumentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	doc, errUpload := h.documents.Upload(c.Request.Context(), userID, document.UploadInput{
		LoanRequestID: body.LoanRequestID,
		VaultRef:      body.VaultRef,
		Filename:      body.Filename,
		Category:      body.Category,
		DocumentType:  body.DocumentType,
		KeyDetails:    body.KeyDetails,
		Summary:       body.Summary,
		Confidence:    body.Confidence,
		RawOutput:     body.RawOutput,
	})
	if errUpload != nil {
		respondError(c, errUpload, "upload document failed")
		return
	}
	c.JSON(http.StatusCreated, formatDocument(*doc))
}

// List returns the caller's documents, optionally for one loan request.
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var loanRequestID *uint64
	if raw := strings.TrimSpace(c.Query("loanRequestId")); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loanRequestId"})
			return
		}
		loanRequestID = &id
	}
	docs, errList := h.documents.List(c.Request.Context(), userID, loanRequestID)
	if errList != nil {
		respondError(c, errList, "list documents failed")
		return
	}
	out := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		out = append(out, formatDocument(d))
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

// Delete soft-deletes a document of the caller.
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	if errDelete := h.documents.Delete(c.Request.Context(), userID, id); errDelete != nil {
		respondError(c, errDelete, "delete document failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// History returns the caller's latest upload history entries.
func (h *DocumentHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	entries, errHistory := h.documents.History(c.Request.Context(), userID)
	if errHistory != nil {
		respondError(c, errHistory, "list upload history failed")
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{"id": e.ID, "action": e.Action, "timestamp": e.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
