// Package ratelimit implements fixed-window admission control backed by a
// shared atomic counter store.
//
// Counting is fixed-window: counters reset at window boundaries, so a user
// can burst up to twice the limit across a boundary. That tradeoff is
// accepted here; the counter store keeps the check itself race-free.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/intellirate/gateway/internal/config"
	"github.com/intellirate/gateway/internal/quota"
	log "github.com/sirupsen/logrus"
)

// Policy is the rate-limit ceiling applied to one user for one request.
type Policy struct {
	Tier          string // Tier name: free, pro, enterprise.
	Limit         int    // Requests per window; config.UnlimitedLimit means no ceiling.
	WindowSeconds int    // Window length in seconds.
}

// Unlimited reports whether the policy carries the unlimited sentinel.
func (p Policy) Unlimited() bool {
	return p.Limit == config.UnlimitedLimit
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int  // Seconds until the current window resets; set on rejection.
	FailedOpen bool // True when the request was admitted because the store was unreachable.
}

// Snapshot describes a user's current quota consumption.
type Snapshot struct {
	Limit         int    `json:"limit"`
	Used          int64  `json:"used"`
	Remaining     int64  `json:"remaining"`
	WindowSeconds int    `json:"window_seconds"`
	Tier          string `json:"tier"`
	Unlimited     bool   `json:"unlimited"`
}

// Limiter performs fixed-window admission checks against a counter store.
type Limiter struct {
	store    quota.CounterStore
	failOpen bool
	now      func() time.Time
}

// New constructs a Limiter. When failOpen is true, requests are admitted
// if the counter store is unreachable.
func New(store quota.CounterStore, failOpen bool) *Limiter {
	return &Limiter{store: store, failOpen: failOpen, now: time.Now}
}

// Check atomically consumes one request from the user's window and decides
// admission. The counter is incremented even when the request is rejected;
// the decision compares the pre-increment value against the limit, so with
// an atomic store a window never admits more than Limit requests.
func (l *Limiter) Check(ctx context.Context, userID string, policy Policy) Decision {
	if policy.Unlimited() {
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: config.UnlimitedLimit}
	}

	now := l.now()
	key := windowKey(userID, now.Unix()/int64(policy.WindowSeconds))

	count, errIncr := l.store.IncrementAndGet(ctx, key, policy.Window())
	if errIncr != nil {
		if l.failOpen {
			log.WithError(errIncr).WithField("user_id", userID).
				Warn("quota store unreachable, admitting request")
			return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit, FailedOpen: true}
		}
		log.WithError(errIncr).WithField("user_id", userID).
			Warn("quota store unreachable, rejecting request")
		return Decision{Allowed: false, Limit: policy.Limit, RetryAfter: l.retryAfter(now, policy)}
	}

	if count-1 >= int64(policy.Limit) {
		return Decision{Allowed: false, Limit: policy.Limit, RetryAfter: l.retryAfter(now, policy)}
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: policy.Limit, Remaining: remaining}
}

// Snapshot reads the user's current window without consuming a request.
func (l *Limiter) Snapshot(ctx context.Context, userID string, policy Policy) Snapshot {
	if policy.Unlimited() {
		return Snapshot{
			Limit:         config.UnlimitedLimit,
			Remaining:     config.UnlimitedLimit,
			WindowSeconds: policy.WindowSeconds,
			Tier:          policy.Tier,
			Unlimited:     true,
		}
	}

	snapshot := Snapshot{
		Limit:         policy.Limit,
		Remaining:     int64(policy.Limit),
		WindowSeconds: policy.WindowSeconds,
		Tier:          policy.Tier,
	}

	key := windowKey(userID, l.now().Unix()/int64(policy.WindowSeconds))
	used, errGet := l.store.Get(ctx, key)
	if errGet != nil {
		log.WithError(errGet).WithField("user_id", userID).Warn("quota snapshot read failed")
		return snapshot
	}

	snapshot.Used = used
	snapshot.Remaining = int64(policy.Limit) - used
	if snapshot.Remaining < 0 {
		snapshot.Remaining = 0
	}
	return snapshot
}

// retryAfter returns the seconds left until the current window resets.
func (l *Limiter) retryAfter(now time.Time, policy Policy) int {
	return policy.WindowSeconds - int(now.Unix()%int64(policy.WindowSeconds))
}

// Window returns the policy window as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// windowKey builds the counter key for one user and window.
func windowKey(userID string, windowID int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", userID, windowID)
}
