package memory

import (
	"context"
	"sort"
	"sync"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

type snapshotKey struct {
	vault     string
	timestamp int64
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.VaultSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[snapshotKey]*domain.VaultSnapshot),
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if (vault, timestamp) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.VaultSnapshot) error {
	if snap == nil || snap.Vault == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey{snap.Vault, snap.Timestamp}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	c := *snap
	s.data[key] = &c
	return nil
}

// GetLatest retrieves the most recent snapshot of a vault. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(_ context.Context, vault string) (*domain.VaultSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.VaultSnapshot
	for k, snap := range s.data {
		if k.vault == vault && (latest == nil || snap.Timestamp > latest.Timestamp) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	c := *latest
	return &c, nil
}

// GetByTimeRange retrieves snapshots of a vault within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(_ context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VaultSnapshot
	for k, snap := range s.data {
		if k.vault == vault && k.timestamp >= start && k.timestamp <= end {
			c := *snap
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
