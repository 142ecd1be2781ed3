package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Amount columns are NUMERIC(78, 0); they travel as text in both directions.
const selectSnapshotColumns = `
	SELECT
		vault, timestamp,
		total_supply::text, total_value::text, high_water_mark::text, performance_fee_reserve::text,
		last_collect_management_fee, last_collect_performance_fee
	FROM vault_snapshots
`

// Insert adds a new snapshot. Returns ErrDuplicateKey if (vault, timestamp) exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.VaultSnapshot) (err error) {
	if snap == nil || snap.Vault == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("snapshot_insert", start, err) }()

	query := `
		INSERT INTO vault_snapshots (
			vault, timestamp,
			total_supply, total_value, high_water_mark, performance_fee_reserve,
			last_collect_management_fee, last_collect_performance_fee
		) VALUES (
			$1, $2,
			$3::text::numeric, $4::text::numeric, $5::text::numeric, $6::text::numeric,
			$7, $8
		)
	`

	_, err = s.pool.Exec(ctx, query,
		snap.Vault, snap.Timestamp,
		orZero(snap.TotalSupply), orZero(snap.TotalValue), orZero(snap.HighWaterMark), orZero(snap.PerformanceFeeReserve),
		snap.LastCollectManagementFee, snap.LastCollectPerformanceFee,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert vault snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot of a vault. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(ctx context.Context, vault string) (*domain.VaultSnapshot, error) {
	row := s.pool.QueryRow(ctx, selectSnapshotColumns+`
		WHERE vault = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, vault)

	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest vault snapshot: %w", err)
	}
	return snap, nil
}

// GetByTimeRange retrieves snapshots of a vault within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error) {
	rows, err := s.pool.Query(ctx, selectSnapshotColumns+`
		WHERE vault = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`, vault, start, end)
	if err != nil {
		return nil, fmt.Errorf("get vault snapshots by time range: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.VaultSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault snapshot rows: %w", err)
	}

	return snaps, nil
}

func scanSnapshot(row pgx.Row) (*domain.VaultSnapshot, error) {
	var snap domain.VaultSnapshot
	err := row.Scan(
		&snap.Vault, &snap.Timestamp,
		&snap.TotalSupply, &snap.TotalValue, &snap.HighWaterMark, &snap.PerformanceFeeReserve,
		&snap.LastCollectManagementFee, &snap.LastCollectPerformanceFee,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
