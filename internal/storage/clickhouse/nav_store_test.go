package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/storage"
)

func TestNAVStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewNAVStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	points := []*domain.NAVPoint{
		{
			Vault:         "0xVault",
			TimestampMs:   2000,
			TotalValue:    1100.5,
			TotalSupply:   1000,
			ValuePerShare: 1.1005,
			Composition:   []float64{480, 380, 40.5, 200},
		},
		{
			Vault:         "0xVault",
			TimestampMs:   1000,
			TotalValue:    1000,
			TotalSupply:   1000,
			ValuePerShare: 1,
			Composition:   []float64{1000},
		},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	got, err := store.GetByTimeRange(ctx, "0xVault", 0, 5000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)
	assert.Equal(t, 1100.5, got[1].TotalValue)
	assert.Equal(t, []float64{480, 380, 40.5, 200}, got[1].Composition)
}

func TestNAVStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewNAVStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.NAVPoint{{Vault: "0xVault", TimestampMs: 1000}}))

	err := store.InsertBulk(ctx, []*domain.NAVPoint{
		{Vault: "0xVault", TimestampMs: 3000},
		{Vault: "0xVault", TimestampMs: 1000},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.NAVPoint{
		{Vault: "0xVault", TimestampMs: 4000},
		{Vault: "0xVault", TimestampMs: 4000},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByTimeRange(ctx, "0xVault", 0, 5000)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNAVStore_GetByTimeRange_Filters(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewNAVStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.NAVPoint{
		{Vault: "0xVault", TimestampMs: 1000},
		{Vault: "0xVault", TimestampMs: 2000},
		{Vault: "0xOther", TimestampMs: 2000},
	}))

	got, err := store.GetByTimeRange(ctx, "0xVault", 1500, 2000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2000), got[0].TimestampMs)

	got, err = store.GetByTimeRange(ctx, "0xVault", 3000, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}
