package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/vaulterrors"
)

var (
	base   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	pair   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	aToken = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type prices map[common.Address]bool

func (p prices) IsOracleEnabled(token common.Address) bool { return p[token] }

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(base)
	require.NoError(t, err)
	return r
}

func TestRegistry_AddValidation(t *testing.T) {
	r := newRegistry(t)
	p := prices{tokenA: true}

	_, err := r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindBase}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrBaseAssetCannotBeAdded)

	_, err = r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKind(9)}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAssetType)

	_, err = r.Add(domain.Asset{Token: tokenB, Kind: domain.AssetKindAtomic}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrOracleNotEnabled)

	i, err := r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindAtomic}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindAtomic}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrAssetAlreadyAdded)

	_, err = r.Add(domain.Asset{Token: base, Kind: domain.AssetKindAtomic}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrAssetAlreadyAdded)
}

func TestRegistry_CompositeLegsMustBePriced(t *testing.T) {
	r := newRegistry(t)
	p := prices{tokenA: true}

	_, err := r.Add(domain.Asset{Token: pair, Kind: domain.AssetKindCompositePair, Legs: []common.Address{base, tokenB}}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrOracleNotEnabled)

	_, err = r.Add(domain.Asset{Token: pair, Kind: domain.AssetKindCompositePair, Legs: []common.Address{base}}, p)
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAssetType)

	_, err = r.Add(domain.Asset{Token: pair, Kind: domain.AssetKindCompositePair, Legs: []common.Address{base, tokenA}}, p)
	require.NoError(t, err)

	_, err = r.Add(domain.Asset{Token: aToken, Kind: domain.AssetKindLendingDeposit, Legs: []common.Address{base}}, p)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetKindLendingDeposit, r.Kind(aToken))
	assert.Equal(t, 3, r.Count())
}

func TestRegistry_RemoveKeepsIndices(t *testing.T) {
	r := newRegistry(t)
	p := prices{tokenA: true, tokenB: true}
	_, err := r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindAtomic}, p)
	require.NoError(t, err)
	_, err = r.Add(domain.Asset{Token: tokenB, Kind: domain.AssetKindAtomic}, p)
	require.NoError(t, err)

	_, err = r.Remove(0, nil)
	assert.ErrorIs(t, err, vaulterrors.ErrBaseAssetCannotBeRemoved)

	_, err = r.Remove(5, nil)
	assert.ErrorIs(t, err, vaulterrors.ErrAssetNotFound)

	_, err = r.Remove(1, uint256.NewInt(1))
	assert.ErrorIs(t, err, vaulterrors.ErrAssetBalanceNotZero)

	removed, err := r.Remove(1, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, tokenA, removed.Token)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.Count())
	assert.False(t, r.Contains(tokenA))
	idx, ok := r.IndexOf(tokenB)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, err = r.Remove(1, nil)
	assert.ErrorIs(t, err, vaulterrors.ErrAssetNotFound)

	// re-adding reuses the slot
	i, err := r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindAtomic}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := newRegistry(t)
	p := prices{tokenA: true}
	snap := r.Snapshot()

	_, err := r.Add(domain.Asset{Token: tokenA, Kind: domain.AssetKindAtomic}, p)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	r.Restore(snap)
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Contains(tokenA))
}

func TestNew_ZeroBase(t *testing.T) {
	_, err := New(common.Address{})
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidAddress)
}
