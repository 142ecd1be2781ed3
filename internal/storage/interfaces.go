package storage

import (
	"context"

	"portfolio-vault/internal/domain"
)

// FactStore provides access to the vault_facts journal.
type FactStore interface {
	// Insert adds a new fact. Returns ErrDuplicateKey if fact_id exists.
	Insert(ctx context.Context, f *domain.FactRecord) error

	// InsertBulk adds multiple facts atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, facts []*domain.FactRecord) error

	// GetByID retrieves a fact by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, factID string) (*domain.FactRecord, error)

	// GetByEmitter retrieves facts of one emitter with seq >= fromSeq, ordered by seq ASC.
	GetByEmitter(ctx context.Context, emitter string, fromSeq int64) ([]*domain.FactRecord, error)

	// GetByKind retrieves all facts of a kind, ordered by seq ASC.
	GetByKind(ctx context.Context, kind domain.FactKind) ([]*domain.FactRecord, error)
}

// SnapshotStore provides access to vault_snapshots storage.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if (vault, timestamp) exists.
	Insert(ctx context.Context, s *domain.VaultSnapshot) error

	// GetLatest retrieves the most recent snapshot of a vault. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, vault string) (*domain.VaultSnapshot, error)

	// GetByTimeRange retrieves snapshots of a vault within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error)
}

// NAVStore provides access to the vault_nav time series.
type NAVStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (vault, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.NAVPoint) error

	// GetByTimeRange retrieves points of a vault within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.NAVPoint, error)
}
