package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/models"
)

// LoanRequestHandler serves the borrower side of loan requests.
type LoanRequestHandler struct {
	requests  *loanrequest.Service
	documents *document.Service
	publisher *chain.Publisher
}

// NewLoanRequestHandler constructs a LoanRequestHandler.
func NewLoanRequestHandler(requests *loanrequest.Service, documents *document.Service, publisher *chain.Publisher) *LoanRequestHandler {
	return &LoanRequestHandler{requests: requests, documents: documents, publisher: publisher}
}

// List returns the caller's loan requests with assessment counters.
func (h *LoanRequestHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	rows, errList := h.requests.ListMine(c.Request.Context(), userID)
	if errList != nil {
		respondError(c, errList, "list loan requests failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := formatLoanRequest(row.Request)
		item["assessmentCount"] = row.AssessmentCount
		item["completedAssessments"] = row.CompletedAssessments
		item["pendingAssessments"] = row.PendingAssessments
		item["payoutWalletAddress"] = row.PayoutWalletAddress
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"loanRequests": out})
}

type createLoanRequestRequest struct {
	Amount           float64 `json:"amount"`
	Duration         int     `json:"duration"`
	Purpose          string  `json:"purpose"`
	Note             string  `json:"note"`
	AllowAssessments *bool   `json:"allowAssessments"`
	PayoutWalletID   *uint64 `json:"payoutWalletId"`
}

// Create registers a draft loan request.
func (h *LoanRequestHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body createLoanRequestRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	allow := true
	if body.AllowAssessments != nil {
		allow = *body.AllowAssessments
	}
	created, errCreate := h.requests.Create(c.Request.Context(), userID, loanrequest.CreateInput{
		Amount:           body.Amount,
		Duration:         body.Duration,
		Purpose:          body.Purpose,
		Note:             body.Note,
		AllowAssessments: allow,
		PayoutWalletID:   body.PayoutWalletID,
	})
	if errCreate != nil {
		respondError(c, errCreate, "create loan request failed")
		return
	}
	c.JSON(http.StatusCreated, formatLoanRequest(*created))
}

// Get returns a loan request by short id with borrower name and counters.
func (h *LoanRequestHandler) Get(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	detail, errGet := h.requests.GetByShortID(c.Request.Context(), c.Param("shortId"))
	if errGet != nil {
		respondError(c, errGet, "get loan request failed")
		return
	}
	out := formatLoanRequest(detail.Request)
	out["borrowerName"] = detail.BorrowerName
	out["payoutWalletAddress"] = detail.PayoutWalletAddress
	out["assessmentCount"] = detail.AssessmentCount
	c.JSON(http.StatusOK, out)
}

type updateLoanRequestRequest struct {
	Amount           *float64 `json:"amount"`
	Duration         *int     `json:"duration"`
	Purpose          *string  `json:"purpose"`
	Note             *string  `json:"note"`
	AllowAssessments *bool    `json:"allowAssessments"`
	PayoutWalletID   *uint64  `json:"payoutWalletId"`
	Status           *string  `json:"status"`
	IsPublished      *bool    `json:"isPublished"`
	BlockchainTxHash *string  `json:"blockchainTxHash"`
	IsOnChain        *bool    `json:"isOnChain"`
	IsFunded         *bool    `json:"isFunded"`
	FundedBy         *string  `json:"fundedBy"`
	FundingTxHash    *string  `json:"fundingTxHash"`
}

// Update patches a loan request owned by the caller.
func (h *LoanRequestHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body updateLoanRequestRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	patch := loanrequest.Patch{
		Amount:           body.Amount,
		Duration:         body.Duration,
		Purpose:          body.Purpose,
		Note:             body.Note,
		AllowAssessments: body.AllowAssessments,
		PayoutWalletID:   body.PayoutWalletID,
		IsPublished:      body.IsPublished,
		BlockchainTxHash: body.BlockchainTxHash,
		IsOnChain:        body.IsOnChain,
		IsFunded:         body.IsFunded,
		FundedBy:         body.FundedBy,
		FundingTxHash:    body.FundingTxHash,
	}
	if body.Status != nil {
		status := models.LoanRequestStatus(*body.Status)
		patch.Status = &status
	}
	updated, errUpdate := h.requests.Update(c.Request.Context(), userID, c.Param("shortId"), patch)
	if errUpdate != nil {
		respondError(c, errUpdate, "update loan request failed")
		return
	}
	c.JSON(http.StatusOK, formatLoanRequest(*updated))
}

type txHashRequest struct {
	TxHash   string `json:"txHash"`
	FundedBy string `json:"fundedBy"`
}

// Publish records a confirmed on-chain proposal and lists the request.
func (h *LoanRequestHandler) Publish(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body txHashRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	published, errPublish := h.publisher.Publish(c.Request.Context(), userID, c.Param("shortId"), body.TxHash)
	if errPublish != nil {
		respondError(c, errPublish, "publish loan request failed")
		return
	}
	c.JSON(http.StatusOK, formatLoanRequest(*published))
}

// Documents returns the documents attached to a loan request of the caller.
func (h *LoanRequestHandler) Documents(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	row, errFind := h.requests.FindOwned(c.Request.Context(), userID, c.Param("shortId"))
	if errFind != nil {
		respondError(c, errFind, "get loan request failed")
		return
	}
	docs, errList := h.documents.ListForLoanRequest(c.Request.Context(), userID, row.ID)
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
