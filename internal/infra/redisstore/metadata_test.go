package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

func TestTimeFormatRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 11, 12, 345678000, time.FixedZone("x", 7200))

	got, err := parseTime(formatTime(ts))
	if err != nil {
		t.Fatalf("parseTime() error = %v", err)
	}
	if got == nil || !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
}

func TestParseTimeEmpty(t *testing.T) {
	got, err := parseTime("")
	if err != nil || got != nil {
		t.Errorf("parseTime(\"\") = %v, %v", got, err)
	}
}

// TestMetadataStoreIntegration runs against a live Redis when REDIS_ADDR is set.
func TestMetadataStoreIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	s := NewWithClient(client)

	userID := "test-" + uuid.NewString()
	defer s.Delete(ctx, userID)

	md, err := s.GetMetadata(ctx, userID)
	if err != nil || md.LastTransactionTimestamp != nil {
		t.Fatalf("GetMetadata() on new user = %+v, %v", md, err)
	}

	marker := time.Now().UTC().Truncate(time.Microsecond)
	if err := s.SetLastTransactionTimestamp(ctx, userID, marker); err != nil {
		t.Fatalf("SetLastTransactionTimestamp() error = %v", err)
	}
	if err := s.SetExport(ctx, userID, "https://example/x.csv", marker); err != nil {
		t.Fatalf("SetExport() error = %v", err)
	}

	md, err = s.GetMetadata(ctx, userID)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if md.LastTransactionTimestamp == nil || !md.LastTransactionTimestamp.Equal(marker) {
		t.Errorf("marker = %v, want %v", md.LastTransactionTimestamp, marker)
	}
	if md.ExportURL != "https://example/x.csv" {
		t.Errorf("ExportURL = %q", md.ExportURL)
	}
}
