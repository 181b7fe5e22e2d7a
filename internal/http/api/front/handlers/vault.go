package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/vault"
)

// VaultHandler serves sealed document storage and keypairs.
type VaultHandler struct {
	vault *vault.Service
}

// NewVaultHandler constructs a VaultHandler.
func NewVaultHandler(svc *vault.Service) *VaultHandler {
	return &VaultHandler{vault: svc}
}

type vaultRequest struct {
	Action      string `json:"action"`
	DocumentID  string `json:"documentId"`
	RawOutput   string `json:"rawOutput"`
	Base64Image string `json:"base64Image"`
}

// Operate stores or retrieves a sealed document depending on action.
func (h *VaultHandler) Operate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body vaultRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	switch strings.ToLower(strings.TrimSpace(body.Action)) {
	case "store":
		result, errStore := h.vault.StoreDocument(ctx, userID, body.DocumentID, body.RawOutput, body.Base64Image)
		if errStore != nil {
			respondError(c, errStore, "Vault operation failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result, "message": "Document stored in SecretVault"})
	case "retrieve":
		env, errRetrieve := h.vault.RetrieveDocument(ctx, userID, body.DocumentID)
		if errRetrieve != nil {
			respondError(c, errRetrieve, "Vault operation failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": env, "message": "Document retrieved from SecretVault"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	}
}

// GenerateKeypair returns the caller's keypair, creating it on first use.
func (h *VaultHandler) GenerateKeypair(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	kp, created, errKey := h.vault.GetOrCreateKeypair(c.Request.Context(), userID)
	if errKey != nil {
		respondError(c, errKey, "generate keypair failed")
		return
	}
	message := "Keypair already exists"
	status := http.StatusOK
	if created {
		message = "Keypair generated successfully"
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "keypair": formatKeypair(kp), "message": message})
}

// GetKeypair returns the caller's public key and DID.
func (h *VaultHandler) GetKeypair(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	kp, errKey := h.vault.GetKeypair(c.Request.Context(), userID)
	if errKey != nil {
		respondError(c, errKey, "get keypair failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"keypair": formatKeypair(kp)})
}
