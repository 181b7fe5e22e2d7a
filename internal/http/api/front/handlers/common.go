package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
)

// ContextUserIDKey is the gin context key holding the authenticated user ID.
const ContextUserIDKey = "userID"

// getUserID returns the authenticated user ID, or zero.
func getUserID(c *gin.Context) uint64 {
	raw, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0
	}
	id, _ := raw.(uint64)
	return id
}

// requireUserID writes 401 and returns false when no user is authenticated.
func requireUserID(c *gin.Context) (uint64, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return 0, false
	}
	return userID, true
}

// respondError maps err to its status and writes {"error": message}.
// Unexpected errors are logged and reported with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err, fallback)})
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
