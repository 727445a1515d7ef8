package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
)

// Store keeps transactions, metadata and snapshots in memory.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu        sync.RWMutex
	txs       map[string]map[txKey]*domain.Transaction // userID -> (kind, txID) -> tx
	metadata  map[string]*domain.UserMetadata
	snapshots map[string]*domain.AnalysisSnapshot
}

// txKey mirrors the separate expenses and income tables: IDs are unique per kind.
type txKey struct {
	kind domain.Kind
	id   string
}

var (
	_ bq.TransactionRepository = (*Store)(nil)
	_ bq.MetadataRepository    = (*Store)(nil)
	_ bq.SnapshotRepository    = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		txs:       make(map[string]map[txKey]*domain.Transaction),
		metadata:  make(map[string]*domain.UserMetadata),
		snapshots: make(map[string]*domain.AnalysisSnapshot),
	}
}

func (s *Store) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		userTxs, ok := s.txs[tx.UserID]
		if !ok {
			userTxs = make(map[txKey]*domain.Transaction)
			s.txs[tx.UserID] = userTxs
		}
		txCopy := *tx
		userTxs[txKey{kind: tx.Kind, id: tx.ID}] = &txCopy
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.collect(userID, kind, func(*domain.Transaction) bool { return true })
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[j].Date.Before(result[i].Date)
		}
		return result[j].CreatedAt.Before(result[i].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListTransactionsInRange(ctx context.Context, userID string, kind domain.Kind, start, end civil.Date) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.collect(userID, kind, func(tx *domain.Transaction) bool {
		return !tx.Date.Before(start) && !tx.Date.After(end)
	})
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteTransactions(ctx context.Context, userID string, kind domain.Kind, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userTxs := s.txs[userID]
	var n int64
	for _, id := range ids {
		k := txKey{kind: kind, id: id}
		if _, ok := userTxs[k]; ok {
			delete(userTxs, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAllTransactions(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.txs[userID]))
	delete(s.txs, userID)
	return n, nil
}

func (s *Store) GetMetadata(ctx context.Context, userID string) (*domain.UserMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.metadata[userID]
	if !ok {
		return &domain.UserMetadata{UserID: userID}, nil
	}
	mdCopy := *md
	return &mdCopy, nil
}

func (s *Store) SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error {
	s.updateMetadata(userID, func(md *domain.UserMetadata) {
		md.LastTransactionTimestamp = timePtr(ts)
	})
	return nil
}

func (s *Store) SetExport(ctx context.Context, userID, url string, builtAt time.Time) error {
	s.updateMetadata(userID, func(md *domain.UserMetadata) {
		md.ExportURL = url
		md.ExportBuiltAt = timePtr(builtAt)
	})
	return nil
}

func (s *Store) SetLastAnalyzed(ctx context.Context, userID string, ts time.Time) error {
	s.updateMetadata(userID, func(md *domain.UserMetadata) {
		md.LastAnalyzed = timePtr(ts)
	})
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, userID string) (*domain.AnalysisSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, nil
	}
	snapCopy := *snap
	return &snapCopy, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.AnalysisSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapCopy := *snap
	s.snapshots[snap.UserID] = &snapCopy
	return nil
}

// PurgeUser drops everything stored for userID.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.txs, userID)
	delete(s.metadata, userID)
	delete(s.snapshots, userID)
	return nil
}

// collect must be called with the lock held.
func (s *Store) collect(userID string, kind domain.Kind, keep func(*domain.Transaction) bool) []*domain.Transaction {
	result := []*domain.Transaction{}
	for _, tx := range s.txs[userID] {
		if tx.Kind != kind || !keep(tx) {
			continue
		}
		txCopy := *tx
		result = append(result, &txCopy)
	}
	return result
}

func (s *Store) updateMetadata(userID string, apply func(*domain.UserMetadata)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, ok := s.metadata[userID]
	if !ok {
		md = &domain.UserMetadata{UserID: userID}
		s.metadata[userID] = md
	}
	apply(md)
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
