package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intellirate/gateway/internal/config"
	"github.com/intellirate/gateway/internal/db"
	"github.com/intellirate/gateway/internal/gateway"
	"github.com/intellirate/gateway/internal/logging"
	"github.com/intellirate/gateway/internal/quota"
	"github.com/intellirate/gateway/internal/ratelimit"
	"github.com/intellirate/gateway/internal/recorder"
	"github.com/intellirate/gateway/internal/security"
	"github.com/intellirate/gateway/internal/tier"
	"github.com/intellirate/gateway/internal/upstream"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("app: database dsn is required for migrate")
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the gateway and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	logging.Setup(cfg.Logging)
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	var conn *gorm.DB
	if strings.TrimSpace(cfg.Database.DSN) != "" {
		opened, errOpen := db.Open(cfg.Database.DSN)
		if errOpen != nil {
			return errOpen
		}
		if errMigrate := db.Migrate(opened); errMigrate != nil {
			return errMigrate
		}
		conn = opened
	} else {
		log.Warn("no database configured, request records and overrides disabled")
	}

	store, errStore := quota.NewRedisCounterStore(cfg.Redis.URL)
	if errStore != nil {
		return errStore
	}
	defer func() { _ = store.Close() }()
	if errPing := store.Ping(ctx); errPing != nil {
		log.WithError(errPing).Warn("quota store unreachable at startup")
	}

	rec := recorder.New(conn)
	defer rec.Close()

	var verifier security.Verifier
	if strings.TrimSpace(cfg.Auth.JWTSecret) != "" {
		verifier = security.NewJWTVerifier(cfg.Auth.JWTSecret)
	} else {
		log.Warn("no jwt secret configured, token verification disabled")
	}

	server := gateway.NewServer(
		ratelimit.New(store, cfg.RateLimit.FailOpen),
		tier.NewResolver(conn, cfg.RateLimit),
		upstream.NewClient(cfg.Upstream),
		rec,
		verifier,
		store,
	)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown failed")
		}
	}()

	log.Infof("gateway listening on %s", cfg.Listen)
	if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	// In-flight handlers still enqueue recorder writes until Shutdown
	// returns; the deferred recorder Close must not race them.
	<-shutdownDone
	return nil
}
