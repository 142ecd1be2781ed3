package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

// NAVStore is an in-memory implementation of storage.NAVStore.
type NAVStore struct {
	mu   sync.RWMutex
	data map[string]*domain.NAVPoint // keyed by (vault, timestamp_ms)
}

// NewNAVStore creates a new in-memory NAV store.
func NewNAVStore() *NAVStore {
	return &NAVStore{
		data: make(map[string]*domain.NAVPoint),
	}
}

func navKey(vault string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", vault, timestampMs)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *NAVStore) InsertBulk(_ context.Context, points []*domain.NAVPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.Vault == "" {
			return storage.ErrInvalidInput
		}
		key := navKey(p.Vault, p.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		s.data[navKey(p.Vault, p.TimestampMs)] = cloneNAV(p)
	}

	return nil
}

// GetByTimeRange retrieves points of a vault within [start, end] (inclusive), ordered by timestamp ASC.
func (s *NAVStore) GetByTimeRange(_ context.Context, vault string, start, end int64) ([]*domain.NAVPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.NAVPoint
	for _, p := range s.data {
		if p.Vault == vault && p.TimestampMs >= start && p.TimestampMs <= end {
			result = append(result, cloneNAV(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

func cloneNAV(p *domain.NAVPoint) *domain.NAVPoint {
	c := *p
	c.Composition = append([]float64(nil), p.Composition...)
	return &c
}

var _ storage.NAVStore = (*NAVStore)(nil)
