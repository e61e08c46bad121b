package models

import "time"

// RateLimitOverride stores an admin-assigned per-user rate limit that takes
// precedence over tier defaults.
type RateLimitOverride struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:text;not null;uniqueIndex"` // Target user ID.

	Tier  string `gorm:"type:text;not null"` // Assigned tier: free, pro, enterprise.
	Limit int    `gorm:"not null"`           // Requests per window; -1 means unlimited.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (RateLimitOverride) TableName() string {
	return "rate_limit_overrides"
}
