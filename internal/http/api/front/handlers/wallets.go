package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/passport"
	"github.com/trustlend/trustlend/internal/wallet"
)

// WalletHandler serves wallet endpoints and humanity score checks.
type WalletHandler struct {
	wallets  *wallet.Service
	passport *passport.Client
}

// NewWalletHandler constructs a WalletHandler.
func NewWalletHandler(wallets *wallet.Service, passportClient *passport.Client) *WalletHandler {
	return &WalletHandler{wallets: wallets, passport: passportClient}
}

// List returns the caller's wallets, primary first.
func (h *WalletHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	wallets, errList := h.wallets.List(c.Request.Context(), userID)
	if errList != nil {
		respondError(c, errList, "list wallets failed")
		return
	}
	out := make([]gin.H, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, formatWallet(w))
	}
	c.JSON(http.StatusOK, gin.H{"wallets": out})
}

type addWalletRequest struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

// Add connects a wallet address.
func (h *WalletHandler) Add(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body addWalletRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	created, errAdd := h.wallets.Add(c.Request.Context(), userID, body.Address, body.Nickname)
	if errAdd != nil {
		respondError(c, errAdd, "add wallet failed")
		return
	}
	c.JSON(http.StatusCreated, formatWallet(*created))
}

// Get returns one wallet of the caller.
func (h *WalletHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	w, errGet := h.wallets.Get(c.Request.Context(), userID, id)
	if errGet != nil {
		respondError(c, errGet, "get wallet failed")
		return
	}
	c.JSON(http.StatusOK, formatWallet(*w))
}

// SetPrimary makes a wallet the caller's primary wallet.
func (h *WalletHandler) SetPrimary(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	w, errSet := h.wallets.SetPrimary(c.Request.Context(), userID, id)
	if errSet != nil {
		respondError(c, errSet, "set primary wallet failed")
		return
	}
	c.JSON(http.StatusOK, formatWallet(*w))
}

// Remove disconnects a wallet.
func (h *WalletHandler) Remove(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	if errRemove := h.wallets.Remove(c.Request.Context(), userID, id); errRemove != nil {
		respondError(c, errRemove, "remove wallet failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RefreshHumanityScore fetches and stores the humanity score of a wallet.
func (h *WalletHandler) RefreshHumanityScore(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	w, score, errRefresh := h.wallets.RefreshHumanityScore(c.Request.Context(), userID, id)
	if errRefresh != nil {
		respondError(c, errRefresh, "refresh humanity score failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": formatWallet(*w), "score": score})
}

type verifyScoreRequest struct {
	Address string `json:"address"`
}

// VerifyScore looks up the humanity score of any address without storing it.
func (h *WalletHandler) VerifyScore(c *gin.Context) {
	var body verifyScoreRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	address := strings.TrimSpace(body.Address)
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address is required"})
		return
	}
	score, errScore := h.passport.Score(c.Request.Context(), address)
	var statusErr *passport.StatusError
	if errors.As(errScore, &statusErr) {
		c.JSON(statusErr.StatusCode, gin.H{"error": "Failed to verify score with Passport API", "details": statusErr.Body})
		return
	}
	if errScore != nil {
		respondError(c, errScore, "Failed to verify score with Passport API")
		return
	}
	c.JSON(http.StatusOK, score)
}
