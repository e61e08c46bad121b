package models

import (
	"time"

	"gorm.io/datatypes"
)

// RequestRecord captures the lifecycle of one proxied request for analytics.
// A row is inserted at admission and updated exactly once at completion.
type RequestRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequestID string `gorm:"type:text;not null;uniqueIndex"` // Gateway-generated request UUID.

	UserID    string `gorm:"type:text;not null;index:idx_user_submitted"` // Caller user ID.
	UserEmail string `gorm:"type:text"`                                   // Caller email, when known.

	SubmittedAt time.Time  `gorm:"not null;index:idx_user_submitted"` // Admission timestamp.
	CompletedAt *time.Time // Completion timestamp; nil while pending.

	Endpoint string `gorm:"type:text"` // Gateway endpoint path.
	Method   string `gorm:"type:text"` // HTTP method.

	Model        string   `gorm:"type:text;index"` // Requested model name.
	Temperature  *float64 // Sampling temperature, when provided.
	MaxTokens    *int     // Max completion tokens, when provided.
	MessageCount int      `gorm:"not null;default:0"` // Number of chat messages.

	StatusCode *int  `gorm:"index"` // Final HTTP status; nil while pending.
	Success    *bool `gorm:"index"` // Outcome flag; nil while pending.

	Error       string         `gorm:"type:text"`  // Error message for failed requests.
	ErrorDetail datatypes.JSON `gorm:"type:jsonb"` // Structured error detail JSON.

	PromptTokens     int64 `gorm:"not null;default:0"` // Prompt token count.
	CompletionTokens int64 `gorm:"not null;default:0"` // Completion token count.
	TotalTokens      int64 `gorm:"not null;default:0"` // Total token count.

	LatencyMS         *int64 // End-to-end latency in milliseconds.
	UpstreamLatencyMS *int64 // Upstream call latency in milliseconds.

	IPAddress string `gorm:"type:text"` // Client IP address.
	UserAgent string `gorm:"type:text"` // Client user agent.
}

// TableName overrides the default table name.
func (RequestRecord) TableName() string {
	return "request_logs"
}

// Pending reports whether the record has not completed yet.
func (r *RequestRecord) Pending() bool {
	return r.Success == nil
}
