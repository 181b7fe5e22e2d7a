package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/assessment"
)

// AssessmentHandler serves lender assessments of borrowers.
type AssessmentHandler struct {
	assessments *assessment.Service
}

// NewAssessmentHandler constructs an AssessmentHandler.
func NewAssessmentHandler(assessments *assessment.Service) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

type createAssessmentRequest struct {
	BorrowerID    uint64  `json:"borrowerId"`
	LoanRequestID *uint64 `json:"loanRequestId"`
}

// Create charges the caller and opens a pending assessment.
func (h *AssessmentHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body createAssessmentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.BorrowerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "borrowerId is required"})
		return
	}
	created, errCreate := h.assessments.Create(c.Request.Context(), userID, body.BorrowerID, body.LoanRequestID)
	if errCreate != nil {
		respondError(c, errCreate, "create assessment failed")
		return
	}
	c.JSON(http.StatusCreated, formatAssessment(*created))
}

// ListForBorrower returns assessments about the caller.
func (h *AssessmentHandler) ListForBorrower(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	rows, errList := h.assessments.ListForBorrower(c.Request.Context(), userID)
	if errList != nil {
		respondError(c, errList, "list assessments failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := formatAssessment(row.Assessment)
		item["lenderName"] = row.LenderName
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"assessments": out})
}

// ListForLender returns assessments the caller requested.
func (h *AssessmentHandler) ListForLender(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	rows, errList := h.assessments.ListForLender(c.Request.Context(), userID)
	if errList != nil {
		respondError(c, errList, "list assessments failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := formatAssessment(row.Assessment)
		item["borrowerName"] = row.BorrowerName
		item["loanAmount"] = row.Amount
		item["loanDuration"] = row.Duration
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"assessments": out})
}

// Approve moves a pending assessment of the caller to processing.
func (h *AssessmentHandler) Approve(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	row, errApprove := h.assessments.Approve(c.Request.Context(), userID, id)
	if errApprove != nil {
		respondError(c, errApprove, "approve assessment failed")
		return
	}
	c.JSON(http.StatusOK, formatAssessment(*row))
}

// Decline refuses a pending assessment of the caller.
func (h *AssessmentHandler) Decline(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	row, errDecline := h.assessments.Decline(c.Request.Context(), userID, id)
	if errDecline != nil {
		respondError(c, errDecline, "decline assessment failed")
		return
	}
	c.JSON(http.StatusOK, formatAssessment(*row))
}

// Process scores an approved assessment.
func (h *AssessmentHandler) Process(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	row, source, errProcess := h.assessments.ProcessAs(c.Request.Context(), userID, id)
	if errProcess != nil {
		respondError(c, errProcess, "process assessment failed")
		return
	}
	out := formatAssessment(*row)
	out["source"] = source
	c.JSON(http.StatusOK, out)
}
