package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

// FactStore implements storage.FactStore using PostgreSQL.
type FactStore struct {
	pool *Pool
}

// NewFactStore creates a new FactStore.
func NewFactStore(pool *Pool) *FactStore {
	return &FactStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FactStore = (*FactStore)(nil)

const insertFactQuery = `
	INSERT INTO vault_facts (fact_id, emitter, seq, kind, timestamp, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
`

const selectFactColumns = `
	SELECT fact_id, emitter, seq, kind, timestamp, payload
	FROM vault_facts
`

// Insert adds a new fact. Returns ErrDuplicateKey if fact_id exists.
func (s *FactStore) Insert(ctx context.Context, f *domain.FactRecord) (err error) {
	if f == nil || f.FactID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("fact_insert", start, err) }()

	_, err = s.pool.Exec(ctx, insertFactQuery,
		f.FactID, f.Emitter, f.Seq, string(f.Kind), f.Timestamp, f.Payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// InsertBulk adds multiple facts atomically. Fails entire batch on any duplicate.
func (s *FactStore) InsertBulk(ctx context.Context, facts []*domain.FactRecord) (err error) {
	if len(facts) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("fact_insert_bulk", start, err) }()

	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, f := range facts {
			if f == nil || f.FactID == "" {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, insertFactQuery,
				f.FactID, f.Emitter, f.Seq, string(f.Kind), f.Timestamp, f.Payload,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert fact in bulk: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a fact by its ID. Returns ErrNotFound if not exists.
func (s *FactStore) GetByID(ctx context.Context, factID string) (*domain.FactRecord, error) {
	row := s.pool.QueryRow(ctx, selectFactColumns+`WHERE fact_id = $1`, factID)

	var f domain.FactRecord
	var kind string
	err := row.Scan(&f.FactID, &f.Emitter, &f.Seq, &kind, &f.Timestamp, &f.Payload)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fact by id: %w", err)
	}
	f.Kind = domain.FactKind(kind)
	return &f, nil
}

// GetByEmitter retrieves facts of one emitter with seq >= fromSeq, ordered by seq ASC.
func (s *FactStore) GetByEmitter(ctx context.Context, emitter string, fromSeq int64) (_ []*domain.FactRecord, err error) {
	start := time.Now()
	defer func() { observe("fact_by_emitter", start, err) }()

	rows, err := s.pool.Query(ctx, selectFactColumns+`
		WHERE emitter = $1 AND seq >= $2
		ORDER BY seq ASC, fact_id ASC
	`, emitter, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("get facts by emitter: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// GetByKind retrieves all facts of a kind, ordered by seq ASC.
func (s *FactStore) GetByKind(ctx context.Context, kind domain.FactKind) ([]*domain.FactRecord, error) {
	rows, err := s.pool.Query(ctx, selectFactColumns+`
		WHERE kind = $1
		ORDER BY seq ASC, fact_id ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("get facts by kind: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

func scanFacts(rows pgx.Rows) ([]*domain.FactRecord, error) {
	var facts []*domain.FactRecord

	for rows.Next() {
		var f domain.FactRecord
		var kind string
		if err := rows.Scan(&f.FactID, &f.Emitter, &f.Seq, &kind, &f.Timestamp, &f.Payload); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		f.Kind = domain.FactKind(kind)
		facts = append(facts, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}

	return facts, nil
}
