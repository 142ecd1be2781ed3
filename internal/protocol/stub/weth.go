package stub

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/protocol"
)

// WETH implements protocol.WrappedNative. Native collateral is held at the
// token address.
type WETH struct {
	env   *chain.Env
	token common.Address
}

// NewWETH registers the wrapped-native token at address.
func NewWETH(env *chain.Env, address common.Address) (*WETH, error) {
	if err := env.Bank().RegisterToken(address, "WETH", 18); err != nil {
		return nil, err
	}
	return &WETH{env: env, token: address}, nil
}

// Token returns the wrapped-native token address.
func (w *WETH) Token() common.Address {
	return w.token
}

// Wrap converts amount of from's native balance into tokens.
func (w *WETH) Wrap(from common.Address, amount *uint256.Int) error {
	bank := w.env.Bank()
	if err := bank.Transfer(chain.NativeToken, from, w.token, amount); err != nil {
		return err
	}
	return bank.Mint(w.token, from, amount)
}

// Unwrap converts amount of from's tokens back into native currency.
func (w *WETH) Unwrap(from common.Address, amount *uint256.Int) error {
	bank := w.env.Bank()
	if err := bank.Burn(w.token, from, amount); err != nil {
		return err
	}
	return bank.Transfer(chain.NativeToken, w.token, from, amount)
}

var _ protocol.WrappedNative = (*WETH)(nil)
