package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intellirate/gateway/internal/recorder"
	"github.com/intellirate/gateway/internal/upstream"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// proxyRequest is the subset of the chat-completion body the gateway
// inspects; the raw body is forwarded untouched.
type proxyRequest struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   *int              `json:"max_tokens"`
}

// handleProxy runs the per-request pipeline: resolve tier, check quota,
// record start, forward upstream, record completion.
func (s *Server) handleProxy(c *gin.Context) {
	start := time.Now()
	userID := c.GetString(ctxKeyUserID)

	body, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body", "code": "BAD_REQUEST"})
		return
	}
	var req proxyRequest
	if errUnmarshal := json.Unmarshal(body, &req); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be valid JSON", "code": "BAD_REQUEST"})
		return
	}

	tierHint := ""
	userEmail := ""
	if identity := identityFromContext(c); identity != nil {
		tierHint = identity.Tier
		userEmail = identity.Email
	}

	policy := s.resolver.Resolve(c.Request.Context(), userID, tierHint)
	decision := s.limiter.Check(c.Request.Context(), userID, policy)
	if !decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded",
			"code":        "RATE_LIMIT",
			"retry_after": decision.RetryAfter,
			"limit":       decision.Limit,
			"tier":        policy.Tier,
		})
		return
	}

	requestID := s.recorder.Begin(recorder.Metadata{
		UserID:       userID,
		UserEmail:    userEmail,
		Endpoint:     c.FullPath(),
		Method:       c.Request.Method,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		MessageCount: len(req.Messages),
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	// Once a record exists, every terminal path must complete it,
	// including a panic below.
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		s.recorder.Complete(requestID, recorder.Outcome{
			StatusCode: http.StatusInternalServerError,
			Success:    false,
			Error:      fmt.Sprintf("panic: %v", v),
			LatencyMS:  time.Since(start).Milliseconds(),
		})
		log.WithFields(log.Fields{
			"user_id":    userID,
			"request_id": requestID,
			"panic":      v,
		}).Error("proxy handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
	}()

	// Detached from the request context so a client disconnect does not
	// cancel the upstream call or its completion write; the upstream
	// client enforces its own total timeout.
	res, errForward := s.upstream.Forward(context.WithoutCancel(c.Request.Context()), body)
	latencyMS := time.Since(start).Milliseconds()

	if errForward != nil {
		s.finishWithError(c, requestID, userID, errForward, latencyMS)
		return
	}

	s.recorder.Complete(requestID, recorder.Outcome{
		StatusCode:        res.StatusCode,
		Success:           true,
		PromptTokens:      res.Usage.PromptTokens,
		CompletionTokens:  res.Usage.CompletionTokens,
		TotalTokens:       res.Usage.TotalTokens,
		LatencyMS:         latencyMS,
		UpstreamLatencyMS: res.Latency.Milliseconds(),
	})

	log.WithFields(log.Fields{
		"user_id":    userID,
		"request_id": requestID,
		"latency_ms": latencyMS,
		"tokens":     res.Usage.TotalTokens,
	}).Debug("request completed")

	c.Data(http.StatusOK, "application/json", res.Body)
}

// finishWithError records a failed outcome and writes the mapped error
// response.
func (s *Server) finishWithError(c *gin.Context, requestID, userID string, errForward error, latencyMS int64) {
	var upErr *upstream.Error
	if errors.As(errForward, &upErr) {
		s.recorder.Complete(requestID, recorder.Outcome{
			StatusCode:  upErr.StatusCode,
			Success:     false,
			Error:       upErr.Error(),
			ErrorDetail: errorDetail(upErr),
			LatencyMS:   latencyMS,
		})
		log.WithFields(log.Fields{
			"user_id":    userID,
			"request_id": requestID,
			"kind":       string(upErr.Kind),
		}).Warn("upstream call failed")
		c.JSON(upErr.StatusCode, gin.H{"error": upErr.Message, "code": upErr.Code()})
		return
	}

	s.recorder.Complete(requestID, recorder.Outcome{
		StatusCode: http.StatusInternalServerError,
		Success:    false,
		Error:      errForward.Error(),
		LatencyMS:  latencyMS,
	})
	log.WithError(errForward).WithFields(log.Fields{
		"user_id":    userID,
		"request_id": requestID,
	}).Error("unexpected proxy failure")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
}

// errorDetail builds the structured error payload stored on the record.
func errorDetail(upErr *upstream.Error) datatypes.JSON {
	payload, errMarshal := json.Marshal(map[string]any{
		"code":            upErr.Code(),
		"kind":            string(upErr.Kind),
		"upstream_status": upErr.UpstreamStatus,
		"message":         upErr.Message,
	})
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(payload)
}
