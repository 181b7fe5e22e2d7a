package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/loanrequest"
)

// MarketplaceHandler serves the lender side of loan requests.
type MarketplaceHandler struct {
	requests  *loanrequest.Service
	publisher *chain.Publisher
}

// NewMarketplaceHandler constructs a MarketplaceHandler.
func NewMarketplaceHandler(requests *loanrequest.Service, publisher *chain.Publisher) *MarketplaceHandler {
	return &MarketplaceHandler{requests: requests, publisher: publisher}
}

// List returns active published requests of other borrowers.
func (h *MarketplaceHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	listings, errList := h.requests.Marketplace(c.Request.Context(), userID, c.Query("q"))
	if errList != nil {
		respondError(c, errList, "list marketplace failed")
		return
	}
	out := make([]gin.H, 0, len(listings))
	for _, l := range listings {
		item := formatLoanRequest(l.Request)
		item["borrower"] = formatBorrower(l.Borrower)
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"loanRequests": out})
}

// Get returns one listed request for the caller.
func (h *MarketplaceHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	public, errGet := h.requests.GetPublic(c.Request.Context(), userID, c.Param("shortId"))
	if errGet != nil {
		respondError(c, errGet, "get loan request failed")
		return
	}
	out := formatLoanRequest(public.Request)
	out["borrower"] = formatBorrower(public.Borrower)
	out["totalAssessments"] = public.Borrower.CompletedAssessments
	out["canRequestAssessment"] = public.CanRequestAssessment
	if public.ExistingAssessment != nil {
		out["existingAssessment"] = formatAssessment(*public.ExistingAssessment)
	} else {
		out["existingAssessment"] = nil
	}
	c.JSON(http.StatusOK, out)
}

// Fund records a confirmed funding transaction from the caller.
func (h *MarketplaceHandler) Fund(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body txHashRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	funded, errFund := h.publisher.Fund(c.Request.Context(), userID, c.Param("shortId"), body.TxHash, body.FundedBy)
	if errFund != nil {
		respondError(c, errFund, "fund loan request failed")
		return
	}
	c.JSON(http.StatusOK, formatLoanRequest(*funded))
}
