package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/profile"
)

// MeHandler serves the caller's profile and credit balance.
type MeHandler struct {
	profiles *profile.Service
}

// NewMeHandler constructs a MeHandler.
func NewMeHandler(profiles *profile.Service) *MeHandler {
	return &MeHandler{profiles: profiles}
}

// Get returns the caller's profile with counters.
func (h *MeHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	view, errGet := h.profiles.Get(c.Request.Context(), userID)
	if errGet != nil {
		respondError(c, errGet, "get profile failed")
		return
	}
	c.JSON(http.StatusOK, formatProfileView(view))
}

type updateProfileRequest struct {
	DisplayName      string `json:"displayName"`
	Role             string `json:"role"`
	AllowAssessments *bool  `json:"allowAssessments"`
}

// UpdateProfile edits the display name, role and assessment consent.
func (h *MeHandler) UpdateProfile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body updateProfileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	updated, errUpdate := h.profiles.Update(c.Request.Context(), userID, profile.UpdateInput{
		DisplayName:      body.DisplayName,
		Role:             models.ProfileRole(strings.ToLower(strings.TrimSpace(body.Role))),
		AllowAssessments: body.AllowAssessments,
	})
	if errUpdate != nil {
		respondError(c, errUpdate, "update profile failed")
		return
	}
	c.JSON(http.StatusOK, formatProfile(updated))
}

// Credits returns the caller's balance.
func (h *MeHandler) Credits(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	credits, errCredits := h.profiles.Credits(c.Request.Context(), userID)
	if errCredits != nil {
		respondError(c, errCredits, "get credits failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits.InexactFloat64()})
}

type addCreditsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AddCredits tops up the caller's balance.
func (h *MeHandler) AddCredits(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body addCreditsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	balance, errAdd := h.profiles.AddCredits(c.Request.Context(), userID, body.Amount)
	if errAdd != nil {
		respondError(c, errAdd, "add credits failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": balance.InexactFloat64()})
}
