package recorder

import (
	"net/http"
	"testing"
	"time"

	"github.com/intellirate/gateway/internal/db"
	"github.com/intellirate/gateway/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func loadRecord(t *testing.T, conn *gorm.DB, requestID string) models.RequestRecord {
	t.Helper()
	var row models.RequestRecord
	if errFind := conn.Where("request_id = ?", requestID).Take(&row).Error; errFind != nil {
		t.Fatalf("load record %s: %v", requestID, errFind)
	}
	return row
}

func TestBeginPersistsPendingRecord(t *testing.T) {
	conn := openTestDB(t)
	rec := New(conn)

	maxTokens := 128
	requestID := rec.Begin(Metadata{
		UserID:       "u1",
		Endpoint:     "/proxy",
		Method:       http.MethodPost,
		Model:        "llama-3.3-70b-versatile",
		MaxTokens:    &maxTokens,
		MessageCount: 2,
	})
	rec.Close()

	if requestID == "" {
		t.Fatal("expected a request id")
	}
	row := loadRecord(t, conn, requestID)
	if !row.Pending() {
		t.Fatal("expected pending record before completion")
	}
	if row.CompletedAt != nil {
		t.Fatal("completed_at must be nil while pending")
	}
	if row.Model != "llama-3.3-70b-versatile" || row.MessageCount != 2 {
		t.Fatalf("metadata not persisted: %+v", row)
	}
}

func TestCompleteSuccessPersistsOutcome(t *testing.T) {
	conn := openTestDB(t)
	rec := New(conn)

	requestID := rec.Begin(Metadata{UserID: "u1", Endpoint: "/proxy"})
	rec.Complete(requestID, Outcome{
		StatusCode:        http.StatusOK,
		Success:           true,
		PromptTokens:      10,
		CompletionTokens:  5,
		TotalTokens:       15,
		LatencyMS:         120,
		UpstreamLatencyMS: 90,
	})
	rec.Close()

	row := loadRecord(t, conn, requestID)
	if row.Success == nil || !*row.Success {
		t.Fatal("expected success=true")
	}
	if row.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if row.TotalTokens != 15 || row.PromptTokens != 10 || row.CompletionTokens != 5 {
		t.Fatalf("token counts not persisted: %+v", row)
	}
	if row.LatencyMS == nil || *row.LatencyMS != 120 {
		t.Fatalf("latency not persisted: %+v", row.LatencyMS)
	}
	if row.UpstreamLatencyMS == nil || *row.UpstreamLatencyMS != 90 {
		t.Fatalf("upstream latency not persisted: %+v", row.UpstreamLatencyMS)
	}
}

func TestCompleteFailureZeroesTokenCounts(t *testing.T) {
	conn := openTestDB(t)
	rec := New(conn)

	requestID := rec.Begin(Metadata{UserID: "u1"})
	rec.Complete(requestID, Outcome{
		StatusCode:   http.StatusGatewayTimeout,
		Success:      false,
		Error:        "upstream: timeout: provider request timed out",
		TotalTokens:  999,
		PromptTokens: 999,
		LatencyMS:    30000,
	})
	rec.Close()

	row := loadRecord(t, conn, requestID)
	if row.Success == nil || *row.Success {
		t.Fatal("expected success=false")
	}
	if row.TotalTokens != 0 || row.PromptTokens != 0 || row.CompletionTokens != 0 {
		t.Fatalf("token counts must be zero on failure: %+v", row)
	}
	if row.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestCompleteIsIdempotentLastWriteWins(t *testing.T) {
	conn := openTestDB(t)
	rec := New(conn)

	requestID := rec.Begin(Metadata{UserID: "u1"})
	rec.Complete(requestID, Outcome{StatusCode: http.StatusBadGateway, Success: false, Error: "first", LatencyMS: 10})
	rec.Complete(requestID, Outcome{StatusCode: http.StatusOK, Success: true, TotalTokens: 7, LatencyMS: 20})
	rec.Close()

	row := loadRecord(t, conn, requestID)
	if row.Success == nil || !*row.Success {
		t.Fatal("expected the second completion to win")
	}
	if row.StatusCode == nil || *row.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 from second completion, got %v", row.StatusCode)
	}
	if row.TotalTokens != 7 {
		t.Fatalf("expected tokens from second completion, got %d", row.TotalTokens)
	}
}

func TestCompleteUnknownRequestDoesNotFail(t *testing.T) {
	rec := New(openTestDB(t))
	rec.Complete("no-such-request", Outcome{StatusCode: http.StatusOK, Success: true})
	rec.Close()
}

func TestBeginWithoutStoreStillReturnsID(t *testing.T) {
	rec := New(nil)
	defer rec.Close()

	start := time.Now()
	requestID := rec.Begin(Metadata{UserID: "u1"})
	rec.Complete(requestID, Outcome{StatusCode: http.StatusOK, Success: true})
	elapsed := time.Since(start)

	if requestID == "" {
		t.Fatal("expected a request id without a store")
	}
	if elapsed > time.Second {
		t.Fatalf("recorder calls must not block, took %s", elapsed)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	conn := openTestDB(t)
	rec := New(conn)
	rec.Close()

	requestID := rec.Begin(Metadata{UserID: "u1", Endpoint: "/proxy"})
	rec.Complete(requestID, Outcome{StatusCode: http.StatusOK, Success: true})

	if requestID == "" {
		t.Fatal("expected a request id after close")
	}
	var count int64
	if errCount := conn.Model(&models.RequestRecord{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("writes after close must be dropped, found %d rows", count)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rec := New(nil)
	rec.Close()
	rec.Close()
}

func TestBeginUniqueIDs(t *testing.T) {
	rec := New(nil)
	defer rec.Close()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := rec.Begin(Metadata{UserID: "u1"})
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = struct{}{}
	}
}
