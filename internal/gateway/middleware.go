package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/intellirate/gateway/internal/security"
	log "github.com/sirupsen/logrus"
)

// Context keys set by the auth middleware.
const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// AuthMiddleware requires the X-User-Id header and, when an Authorization
// bearer token is present, verifies it against the claimed user id.
// Requests without a token pass through with the claimed id only.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "X-User-Id header is required",
				"code":  "MISSING_USER_ID",
			})
			return
		}
		c.Set(ctxKeyUserID, userID)

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" || s.verifier == nil {
			c.Next()
			return
		}

		identity, errVerify := s.verifier.Verify(token, userID)
		if errVerify != nil {
			if errors.Is(errVerify, security.ErrUserMismatch) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "token does not match claimed user id",
					"code":  "USER_MISMATCH",
				})
				return
			}
			log.WithError(errVerify).WithField("user_id", userID).Debug("token verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
				"code":  "UNAUTHENTICATED",
			})
			return
		}
		c.Set(ctxKeyIdentity, identity)
		c.Next()
	}
}

// bearerToken extracts the token from a Bearer authorization header.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// identityFromContext returns the verified identity, if any.
func identityFromContext(c *gin.Context) *security.Identity {
	v, exists := c.Get(ctxKeyIdentity)
	if !exists {
		return nil
	}
	identity, ok := v.(*security.Identity)
	if !ok {
		return nil
	}
	return identity
}
