package redisstore

import (
	"context"
	"fmt"
	"time"

	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

const (
	fieldLastTransaction = "last_transaction_ts"
	fieldExportURL       = "export_url"
	fieldExportBuilt     = "export_built_ts"
	fieldLastAnalyzed    = "last_analyzed_ts"
)

// MetadataStore keeps the per-user metadata document in a Redis hash
// under user_meta:<userID>. Timestamps are stored as RFC 3339 with nanoseconds.
type MetadataStore struct {
	client *redis.Client
}

var _ bq.MetadataRepository = (*MetadataStore)(nil)

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *MetadataStore {
	return &MetadataStore{client: client}
}

func key(userID string) string {
	return "user_meta:" + userID
}

func (s *MetadataStore) GetMetadata(ctx context.Context, userID string) (*domain.UserMetadata, error) {
	fields, err := s.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("GetMetadata: hgetall: %w", err)
	}

	md := &domain.UserMetadata{UserID: userID, ExportURL: fields[fieldExportURL]}
	if md.LastTransactionTimestamp, err = parseTime(fields[fieldLastTransaction]); err != nil {
		return nil, fmt.Errorf("GetMetadata: %s: %w", fieldLastTransaction, err)
	}
	if md.ExportBuiltAt, err = parseTime(fields[fieldExportBuilt]); err != nil {
		return nil, fmt.Errorf("GetMetadata: %s: %w", fieldExportBuilt, err)
	}
	if md.LastAnalyzed, err = parseTime(fields[fieldLastAnalyzed]); err != nil {
		return nil, fmt.Errorf("GetMetadata: %s: %w", fieldLastAnalyzed, err)
	}
	return md, nil
}

func (s *MetadataStore) SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error {
	if err := s.client.HSet(ctx, key(userID), fieldLastTransaction, formatTime(ts)).Err(); err != nil {
		return fmt.Errorf("SetLastTransactionTimestamp: hset: %w", err)
	}
	return nil
}

func (s *MetadataStore) SetExport(ctx context.Context, userID, url string, builtAt time.Time) error {
	err := s.client.HSet(ctx, key(userID),
		fieldExportURL, url,
		fieldExportBuilt, formatTime(builtAt),
	).Err()
	if err != nil {
		return fmt.Errorf("SetExport: hset: %w", err)
	}
	return nil
}

func (s *MetadataStore) SetLastAnalyzed(ctx context.Context, userID string, ts time.Time) error {
	if err := s.client.HSet(ctx, key(userID), fieldLastAnalyzed, formatTime(ts)).Err(); err != nil {
		return fmt.Errorf("SetLastAnalyzed: hset: %w", err)
	}
	return nil
}

// Delete removes the user's metadata hash.
func (s *MetadataStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("Delete: del: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
