package clickhouse

import (
	"context"
	"fmt"
	"time"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

// NAVStore implements storage.NAVStore using ClickHouse.
type NAVStore struct {
	conn *Conn
}

// NewNAVStore creates a new NAVStore.
func NewNAVStore(conn *Conn) *NAVStore {
	return &NAVStore{conn: conn}
}

// Compile-time interface check.
var _ storage.NAVStore = (*NAVStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (vault, timestamp_ms).
// MergeTree does not enforce uniqueness, so duplicates are checked before the batch is sent.
func (s *NAVStore) InsertBulk(ctx context.Context, points []*domain.NAVPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("nav_insert_bulk", start, err) }()

	type key struct {
		vault       string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Vault == "" || p.TimestampMs < 0 {
			return storage.ErrInvalidInput
		}
		k := key{p.Vault, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range points {
		exists, err := s.exists(ctx, p.Vault, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vault_nav (
			vault, timestamp_ms, total_value, total_supply, value_per_share, composition
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		composition := p.Composition
		if composition == nil {
			composition = []float64{}
		}
		err = batch.Append(
			p.Vault, uint64(p.TimestampMs),
			p.TotalValue, p.TotalSupply, p.ValuePerShare, composition,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points of a vault within [start, end] (inclusive), ordered by timestamp ASC.
func (s *NAVStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.NAVPoint, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	query := `
		SELECT vault, timestamp_ms, total_value, total_supply, value_per_share, composition
		FROM vault_nav
		WHERE vault = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, vault, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanNAV(rows)
}

func (s *NAVStore) exists(ctx context.Context, vault string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM vault_nav
		WHERE vault = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, vault, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanNAV(rows chRows) ([]*domain.NAVPoint, error) {
	var points []*domain.NAVPoint

	for rows.Next() {
		var p domain.NAVPoint
		var timestampMs uint64

		err := rows.Scan(
			&p.Vault, &timestampMs,
			&p.TotalValue, &p.TotalSupply, &p.ValuePerShare, &p.Composition,
		)
		if err != nil {
			return nil, fmt.Errorf("scan nav row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nav rows: %w", err)
	}

	return points, nil
}
