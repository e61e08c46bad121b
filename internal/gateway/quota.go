package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleQuota reports a user's current quota consumption without consuming
// a request. The optional tier query parameter acts as a resolver hint
// when no persisted override exists.
func (s *Server) handleQuota(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required", "code": "MISSING_USER_ID"})
		return
	}

	policy := s.resolver.Resolve(c.Request.Context(), userID, c.Query("tier"))
	c.JSON(http.StatusOK, s.limiter.Snapshot(c.Request.Context(), userID, policy))
}
