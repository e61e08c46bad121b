// Package tier resolves a user's rate-limit policy from overrides, tier
// claims, and historical request volume.
package tier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/intellirate/gateway/internal/config"
	"github.com/intellirate/gateway/internal/models"
	"github.com/intellirate/gateway/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Tier names.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Trailing 30-day volume thresholds for tier inference.
const (
	volumeLookback            = 30 * 24 * time.Hour
	enterpriseVolumeThreshold = 50000
	proVolumeThreshold        = 5000
)

// lookupTimeout bounds resolver database reads so a slow store cannot stall
// the request path.
const lookupTimeout = 500 * time.Millisecond

// Resolver determines the rate-limit policy for a user. It is read-only;
// callers cache the result per request, not across requests.
type Resolver struct {
	db  *gorm.DB
	cfg config.RateLimitConfig
	now func() time.Time
}

// NewResolver constructs a Resolver over the policy/analytics store.
func NewResolver(conn *gorm.DB, cfg config.RateLimitConfig) *Resolver {
	return &Resolver{db: conn, cfg: cfg, now: time.Now}
}

// Resolve returns the policy for userID. Precedence: persisted per-user
// override, then a valid tierHint (for example a verified token claim),
// then tier inferred from trailing 30-day request volume, then free.
// Store failures resolve soft to the free default.
func (r *Resolver) Resolve(ctx context.Context, userID, tierHint string) ratelimit.Policy {
	if r.db != nil {
		if override, ok := r.lookupOverride(ctx, userID); ok {
			return ratelimit.Policy{
				Tier:          override.Tier,
				Limit:         override.Limit,
				WindowSeconds: r.cfg.WindowSeconds,
			}
		}
	}

	if tier, ok := normalizeTier(tierHint); ok {
		return r.DefaultPolicy(tier)
	}

	if r.db != nil {
		if volume, ok := r.lookupVolume(ctx, userID); ok {
			return r.DefaultPolicy(inferTier(volume))
		}
	}

	return r.DefaultPolicy(TierFree)
}

// DefaultPolicy returns the configured default policy for a tier name.
func (r *Resolver) DefaultPolicy(tier string) ratelimit.Policy {
	limit := r.cfg.FreeLimit
	switch tier {
	case TierPro:
		limit = r.cfg.ProLimit
	case TierEnterprise:
		limit = r.cfg.EnterpriseLimit
	default:
		tier = TierFree
	}
	return ratelimit.Policy{Tier: tier, Limit: limit, WindowSeconds: r.cfg.WindowSeconds}
}

// lookupOverride loads the per-user override row, if any.
func (r *Resolver) lookupOverride(ctx context.Context, userID string) (*models.RateLimitOverride, bool) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var override models.RateLimitOverride
	if errFind := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&override).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).WithField("user_id", userID).Warn("rate limit override lookup failed")
		}
		return nil, false
	}
	if _, ok := normalizeTier(override.Tier); !ok {
		override.Tier = TierFree
	}
	return &override, true
}

// lookupVolume counts the user's requests over the trailing 30 days.
func (r *Resolver) lookupVolume(ctx context.Context, userID string) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	cutoff := r.now().UTC().Add(-volumeLookback)
	var count int64
	if errCount := r.db.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Where("user_id = ? AND submitted_at >= ?", userID, cutoff).
		Count(&count).Error; errCount != nil {
		log.WithError(errCount).WithField("user_id", userID).Warn("request volume lookup failed")
		return 0, false
	}
	return count, true
}

// inferTier maps trailing request volume onto a tier.
func inferTier(volume int64) string {
	switch {
	case volume > enterpriseVolumeThreshold:
		return TierEnterprise
	case volume > proVolumeThreshold:
		return TierPro
	default:
		return TierFree
	}
}

// normalizeTier validates a tier name, returning the canonical form.
func normalizeTier(tier string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case TierFree:
		return TierFree, true
	case TierPro:
		return TierPro, true
	case TierEnterprise:
		return TierEnterprise, true
	default:
		return "", false
	}
}
