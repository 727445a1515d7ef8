package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dvloznov/budget-insights/internal/domain"
)

// MemoryStorage is an in-process StorageService used for local runs and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// DenyPrefixes rejects writes to any object whose name starts with one of these.
	DenyPrefixes []string
	// FailWrites makes every write fail with a non-permission error.
	FailWrites error
}

var _ StorageService = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for _, prefix := range m.DenyPrefixes {
		if strings.HasPrefix(object, prefix) {
			return fmt.Errorf("write %s: %w", URI(bucket, object), domain.ErrPermissionDenied)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[URI(bucket, object)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) ObjectURL(ctx context.Context, bucket, object string) (string, error) {
	return PublicURL(bucket, object), nil
}

func (m *MemoryStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[gcsURI]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", gcsURI, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) ExtractFilenameFromGCSURI(uri string) string {
	return path.Base(uri)
}

// Object returns the stored bytes for bucket/object.
func (m *MemoryStorage) Object(bucket, object string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[URI(bucket, object)]
	return data, ok
}
