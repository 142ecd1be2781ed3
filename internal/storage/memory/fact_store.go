package memory

import (
	"context"
	"sort"
	"sync"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

// FactStore is an in-memory implementation of storage.FactStore.
type FactStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FactRecord // keyed by fact_id
}

// NewFactStore creates a new in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{
		data: make(map[string]*domain.FactRecord),
	}
}

// Insert adds a new fact. Returns ErrDuplicateKey if fact_id exists.
func (s *FactStore) Insert(_ context.Context, f *domain.FactRecord) error {
	if f == nil || f.FactID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.FactID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[f.FactID] = cloneFact(f)
	return nil
}

// InsertBulk adds multiple facts atomically. Fails entire batch on any duplicate.
func (s *FactStore) InsertBulk(_ context.Context, facts []*domain.FactRecord) error {
	if len(facts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(facts))

	// First pass: check for duplicates (existing + intra-batch)
	for _, f := range facts {
		if f == nil || f.FactID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[f.FactID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[f.FactID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[f.FactID] = struct{}{}
	}

	for _, f := range facts {
		s.data[f.FactID] = cloneFact(f)
	}

	return nil
}

// GetByID retrieves a fact by its ID. Returns ErrNotFound if not exists.
func (s *FactStore) GetByID(_ context.Context, factID string) (*domain.FactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.data[factID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneFact(f), nil
}

// GetByEmitter retrieves facts of one emitter with seq >= fromSeq, ordered by seq ASC.
func (s *FactStore) GetByEmitter(_ context.Context, emitter string, fromSeq int64) ([]*domain.FactRecord, error) {
	return s.filter(func(f *domain.FactRecord) bool {
		return f.Emitter == emitter && f.Seq >= fromSeq
	}), nil
}

// GetByKind retrieves all facts of a kind, ordered by seq ASC.
func (s *FactStore) GetByKind(_ context.Context, kind domain.FactKind) ([]*domain.FactRecord, error) {
	return s.filter(func(f *domain.FactRecord) bool {
		return f.Kind == kind
	}), nil
}

func (s *FactStore) filter(keep func(*domain.FactRecord) bool) []*domain.FactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FactRecord
	for _, f := range s.data {
		if keep(f) {
			result = append(result, cloneFact(f))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].FactID < result[j].FactID
	})
	return result
}

func cloneFact(f *domain.FactRecord) *domain.FactRecord {
	c := *f
	c.Payload = append([]byte(nil), f.Payload...)
	return &c
}

var _ storage.FactStore = (*FactStore)(nil)
