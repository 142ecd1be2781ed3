package shares

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/vaulterrors"
)

var (
	vaultToken = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000001111")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(chain.NewBank(), vaultToken, "PV")
	require.NoError(t, err)
	return l
}

func TestLedger_MintBurn(t *testing.T) {
	l := newLedger(t)

	err := l.Mint(alice, new(uint256.Int))
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidShareAmount)

	require.NoError(t, l.Mint(alice, uint256.NewInt(100)))
	assert.Equal(t, uint64(100), l.TotalSupply().Uint64())

	err = l.Burn(alice, uint256.NewInt(101))
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidShareAmount)
	err = l.Burn(alice, new(uint256.Int))
	assert.ErrorIs(t, err, vaulterrors.ErrInvalidShareAmount)

	require.NoError(t, l.Burn(alice, uint256.NewInt(40)))
	assert.Equal(t, uint64(60), l.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(60), l.TotalSupply().Uint64())
}

func TestLedger_Transfers(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(alice, uint256.NewInt(100)))

	require.NoError(t, l.Transfer(alice, bob, uint256.NewInt(30)))
	assert.Equal(t, uint64(30), l.BalanceOf(bob).Uint64())

	err := l.TransferFrom(bob, alice, bob, uint256.NewInt(10))
	assert.ErrorIs(t, err, vaulterrors.ErrInsufficientAllowanceOrBalance)

	require.NoError(t, l.Approve(alice, bob, uint256.NewInt(10)))
	require.NoError(t, l.TransferFrom(bob, alice, bob, uint256.NewInt(10)))
	assert.Equal(t, uint64(40), l.BalanceOf(bob).Uint64())
	assert.True(t, l.Allowance(alice, bob).IsZero())
}
