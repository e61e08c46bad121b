// Package recorder persists request lifecycle records without ever
// blocking or failing the request path.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intellirate/gateway/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// queueSize bounds the async write queue; writes beyond it are dropped.
	queueSize = 256
	// writeTimeout bounds each durable write.
	writeTimeout = 2 * time.Second
)

// Metadata describes a request at admission time.
type Metadata struct {
	UserID       string
	UserEmail    string
	Endpoint     string
	Method       string
	Model        string
	Temperature  *float64
	MaxTokens    *int
	MessageCount int
	IPAddress    string
	UserAgent    string
}

// Outcome describes a request at completion time. Token counts are only
// persisted for successful requests.
type Outcome struct {
	StatusCode        int
	Success           bool
	Error             string
	ErrorDetail       datatypes.JSON
	PromptTokens      int64
	CompletionTokens  int64
	TotalTokens       int64
	LatencyMS         int64
	UpstreamLatencyMS int64
}

type job func(ctx context.Context, conn *gorm.DB)

// Recorder writes request records through a bounded queue serviced by a
// single background writer. Storage failures are logged and swallowed.
type Recorder struct {
	db   *gorm.DB
	jobs chan job
	done chan struct{}
	now  func() time.Time

	mu     sync.Mutex
	closed bool
}

// New constructs a Recorder and starts its writer goroutine. A nil
// connection yields a recorder that generates ids but persists nothing.
func New(conn *gorm.DB) *Recorder {
	r := &Recorder{
		db:   conn,
		jobs: make(chan job, queueSize),
		done: make(chan struct{}),
		now:  time.Now,
	}
	go r.run()
	return r
}

// Begin records the start of a request and returns its id. The id is
// generated locally, so a failed or dropped write never blocks admission.
func (r *Recorder) Begin(meta Metadata) string {
	requestID := uuid.NewString()
	submittedAt := r.now().UTC()

	r.enqueue(func(ctx context.Context, conn *gorm.DB) {
		row := models.RequestRecord{
			RequestID:    requestID,
			UserID:       meta.UserID,
			UserEmail:    meta.UserEmail,
			SubmittedAt:  submittedAt,
			Endpoint:     meta.Endpoint,
			Method:       meta.Method,
			Model:        meta.Model,
			Temperature:  meta.Temperature,
			MaxTokens:    meta.MaxTokens,
			MessageCount: meta.MessageCount,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		}
		if errCreate := conn.WithContext(ctx).Create(&row).Error; errCreate != nil {
			log.WithError(errCreate).WithField("request_id", requestID).
				Warn("traffic recorder: failed to record request start")
		}
	})

	return requestID
}

// Complete records the outcome for requestID. It is idempotent: a second
// call overwrites the first (last write wins). A missing record, for
// example when the begin write failed, is logged and ignored.
func (r *Recorder) Complete(requestID string, outcome Outcome) {
	completedAt := r.now().UTC()

	r.enqueue(func(ctx context.Context, conn *gorm.DB) {
		updates := map[string]any{
			"completed_at": completedAt,
			"status_code":  outcome.StatusCode,
			"success":      outcome.Success,
			"error":        outcome.Error,
			"latency_ms":   outcome.LatencyMS,
		}
		if outcome.Success {
			updates["prompt_tokens"] = outcome.PromptTokens
			updates["completion_tokens"] = outcome.CompletionTokens
			updates["total_tokens"] = outcome.TotalTokens
		} else {
			updates["prompt_tokens"] = 0
			updates["completion_tokens"] = 0
			updates["total_tokens"] = 0
		}
		if outcome.UpstreamLatencyMS > 0 {
			updates["upstream_latency_ms"] = outcome.UpstreamLatencyMS
		}
		if len(outcome.ErrorDetail) > 0 {
			updates["error_detail"] = outcome.ErrorDetail
		}

		res := conn.WithContext(ctx).
			Model(&models.RequestRecord{}).
			Where("request_id = ?", requestID).
			Updates(updates)
		if res.Error != nil {
			log.WithError(res.Error).WithField("request_id", requestID).
				Warn("traffic recorder: failed to record request completion")
			return
		}
		if res.RowsAffected == 0 {
			log.WithField("request_id", requestID).
				Warn("traffic recorder: completion for unknown request")
		}
	})
}

// Close stops accepting writes and drains the queue. Safe to call more
// than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	<-r.done
}

// enqueue hands a write to the background writer, dropping it when the
// queue is full or already closed so the request path never blocks or
// panics on storage.
func (r *Recorder) enqueue(j job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Warn("traffic recorder: closed, dropping write")
		return
	}
	select {
	case r.jobs <- j:
	default:
		log.Warn("traffic recorder: queue full, dropping write")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.jobs {
		if r.db == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		j(ctx, r.db)
		cancel()
	}
}
