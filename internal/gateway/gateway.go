// Package gateway wires the HTTP surface: authentication, admission
// control, upstream proxying, and traffic recording.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/intellirate/gateway/internal/ratelimit"
	"github.com/intellirate/gateway/internal/recorder"
	"github.com/intellirate/gateway/internal/security"
	"github.com/intellirate/gateway/internal/tier"
	"github.com/intellirate/gateway/internal/upstream"
)

// UpstreamClient forwards a request body to the completion provider.
type UpstreamClient interface {
	Forward(ctx context.Context, body []byte) (*upstream.Result, error)
}

// Pinger reports reachability of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server composes the gateway components behind the HTTP handlers.
type Server struct {
	limiter  *ratelimit.Limiter
	resolver *tier.Resolver
	upstream UpstreamClient
	recorder *recorder.Recorder
	verifier security.Verifier
	quota    Pinger
}

// NewServer constructs a Server. verifier and quota may be nil; a nil
// verifier skips token verification, a nil quota pinger is reported as
// unconfigured by the health endpoint.
func NewServer(
	limiter *ratelimit.Limiter,
	resolver *tier.Resolver,
	upstreamClient UpstreamClient,
	rec *recorder.Recorder,
	verifier security.Verifier,
	quota Pinger,
) *Server {
	return &Server{
		limiter:  limiter,
		resolver: resolver,
		upstream: upstreamClient,
		recorder: rec,
		verifier: verifier,
		quota:    quota,
	}
}

// Router builds the gin engine with all gateway routes registered.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/quota/:user_id", s.handleQuota)
	engine.POST("/proxy", s.AuthMiddleware(), s.handleProxy)

	return engine
}

// handleHealth reports liveness and quota store reachability.
func (s *Server) handleHealth(c *gin.Context) {
	quotaStatus := "unconfigured"
	if s.quota != nil {
		quotaStatus = "up"
		if errPing := s.quota.Ping(c.Request.Context()); errPing != nil {
			quotaStatus = "down"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"quota_store": quotaStatus,
	})
}
