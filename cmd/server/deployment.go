package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/chain"
	"portfolio-vault/internal/config"
	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/fixedpoint"
	"portfolio-vault/internal/multicall"
	"portfolio-vault/internal/protocol"
	"portfolio-vault/internal/protocol/stub"
	"portfolio-vault/internal/vault"
)

// Demo fee schedule: 1% management, 10% performance, no entry/exit fee.
const (
	demoManagementFee  = 10_000
	demoPerformanceFee = 100_000
)

// deployment is the in-process demo chain: one vault and one helper on stub collaborators.
type deployment struct {
	env     *chain.Env
	vault   *vault.Vault
	helper  *multicall.Helper
	weth    *stub.WETH
	oracle  *stub.Oracle
	pairs   *stub.Pairs
	lending *stub.Lending
	uniswap *stub.UniswapRouter
	agg     *stub.Aggregator

	baseDecimals uint8
	tokens       map[common.Address]tokenInfo
	accounts     map[string]common.Address
}

type tokenInfo struct {
	Symbol   string
	Decimals uint8
}

func scaled(v uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), fixedpoint.Pow10(decimals))
}

// newDeployment builds the demo chain starting at block time now. Sinks are
// subscribed first so deployment facts reach them.
func newDeployment(cfg config.Config, now uint64, logger *zap.Logger, sinks ...chain.FactSink) (*deployment, error) {
	baseDecimals := uint8(cfg.BaseDecimals)
	env := chain.NewEnv(now)
	for _, sink := range sinks {
		env.Subscribe(sink)
	}
	bank := env.Bank()

	usdc := stub.Address("usdc")
	wbtc := stub.Address("wbtc")
	pairAddr := stub.Address("pair-usdc-weth")
	aUSDC := stub.Address("ausdc")

	if err := bank.RegisterToken(usdc, "USDC", baseDecimals); err != nil {
		return nil, err
	}
	if err := bank.RegisterToken(wbtc, "WBTC", 8); err != nil {
		return nil, err
	}
	weth, err := stub.NewWETH(env, stub.Address("weth"))
	if err != nil {
		return nil, err
	}
	wethAddr := weth.Token()

	oracle := stub.NewOracle(env, usdc)
	oracle.SetPrice(wethAddr, scaled(2_000, baseDecimals))
	oracle.SetPrice(wbtc, scaled(60_000, baseDecimals))

	pairs := stub.NewPairs(env)
	if err := pairs.Create(pairAddr, "LP-USDC-WETH", usdc, wethAddr); err != nil {
		return nil, err
	}
	lending := stub.NewLending(env, stub.Address("lending-pool"))
	if err := lending.AddMarket(usdc, aUSDC, "aUSDC"); err != nil {
		return nil, err
	}

	uniswap := stub.NewUniswapRouter(env, stub.Address("uniswap"))
	uniswap.AddPool(usdc, wethAddr, 500, scaled(1, 18), scaled(2_000, baseDecimals))
	uniswap.AddPool(usdc, wbtc, 3000, scaled(1, 8), scaled(60_000, baseDecimals))
	rec := stub.NewPathRecommender()
	for _, route := range [][2]common.Address{{usdc, wethAddr}, {wethAddr, usdc}} {
		if err := rec.SetRecommendedPath(route[:], []uint32{500}); err != nil {
			return nil, err
		}
	}
	for _, route := range [][2]common.Address{{usdc, wbtc}, {wbtc, usdc}} {
		if err := rec.SetRecommendedPath(route[:], []uint32{3000}); err != nil {
			return nil, err
		}
	}

	agg := stub.NewAggregator(env, stub.Address("aggregator"))
	agg.SetRate(usdc, wethAddr, scaled(1, 18), scaled(2_000, baseDecimals))
	agg.SetRate(wethAddr, usdc, scaled(2_000, baseDecimals), scaled(1, 18))
	agg.SetRate(usdc, wbtc, scaled(1, 8), scaled(60_000, baseDecimals))
	agg.SetRate(wbtc, usdc, scaled(60_000, baseDecimals), scaled(1, 8))

	d := &deployment{
		env:          env,
		weth:         weth,
		oracle:       oracle,
		pairs:        pairs,
		lending:      lending,
		uniswap:      uniswap,
		agg:          agg,
		baseDecimals: baseDecimals,
		accounts: map[string]common.Address{
			"owner":   stub.Address("owner"),
			"manager": stub.Address("manager"),
			"fees":    stub.Address("fee-recipient"),
			"alice":   stub.Address("alice"),
			"bob":     stub.Address("bob"),
		},
	}

	// Venues and users start with deep balances; the pair is seeded at the oracle price.
	funded := []common.Address{d.accounts["alice"], d.accounts["bob"], uniswap.Address(), agg.Address(), stub.Address("lp")}
	for _, holder := range funded {
		if err := bank.Mint(chain.NativeToken, holder, scaled(1_000_000, 18)); err != nil {
			return nil, err
		}
		if err := weth.Wrap(holder, scaled(100_000, 18)); err != nil {
			return nil, err
		}
		if err := bank.Mint(usdc, holder, scaled(1_000_000_000, baseDecimals)); err != nil {
			return nil, err
		}
		if err := bank.Mint(wbtc, holder, scaled(10_000, 8)); err != nil {
			return nil, err
		}
	}
	if err := pairs.Seed(stub.Address("lp"), pairAddr, scaled(2_000_000, baseDecimals), scaled(1_000, 18), scaled(1_000, 18)); err != nil {
		return nil, err
	}

	decay, err := fixedpoint.EstimateDecayFactor(fixedpoint.DecayTargetPPM(cfg.DecayRetainedPPM()), cfg.DecaySeconds())
	if err != nil {
		return nil, fmt.Errorf("estimate decay factor: %w", err)
	}

	vaultAddr := stub.Address("vault")
	d.vault, err = vault.New(env, vault.Options{
		Address: vaultAddr,
		Name:    "PV",
		FeeCap:  uint32(cfg.FeeCap),
		FeeConfig: domain.FeeConfig{
			Recipient:      d.accounts["fees"],
			ManagementFee:  demoManagementFee,
			PerformanceFee: demoPerformanceFee,
			DecayFactor:    decay,
		},
		Owner:     d.accounts["owner"],
		Manager:   d.accounts["manager"],
		BaseAsset: usdc,
		Assets:    []common.Address{wethAddr, wbtc, pairAddr, aUSDC},
		AssetKinds: []domain.AssetKind{
			domain.AssetKindAtomic,
			domain.AssetKindAtomic,
			domain.AssetKindCompositePair,
			domain.AssetKindLendingDeposit,
		},
		Oracle:      oracle,
		Pairs:       pairs,
		Lending:     lending,
		Routers:     []protocol.SwapRouter{agg},
		Uniswap:     uniswap,
		Recommender: rec,
		Logger:      logger.Named("vault"),
	})
	if err != nil {
		return nil, fmt.Errorf("deploy vault: %w", err)
	}

	d.helper, err = multicall.New(env, multicall.Options{
		Address: stub.Address("helper"),
		Owner:   d.accounts["owner"],
		Pairs:   pairs,
		Lending: lending,
		WETH:    weth,
		Routers: []protocol.SwapRouter{agg},
		Logger:  logger.Named("multicall"),
	})
	if err != nil {
		return nil, fmt.Errorf("deploy helper: %w", err)
	}
	d.helper.RegisterPortfolio(d.vault)

	maxUint := fixedpoint.Max()
	spendable := []common.Address{usdc, wethAddr, wbtc, pairAddr, aUSDC, vaultAddr}
	for _, name := range []string{"alice", "bob"} {
		holder := d.accounts[name]
		for _, token := range spendable {
			if token != vaultAddr {
				if err := bank.Approve(token, holder, vaultAddr, maxUint); err != nil {
					return nil, err
				}
			}
			if err := bank.Approve(token, holder, d.helper.Address(), maxUint); err != nil {
				return nil, err
			}
		}
	}

	d.tokens = make(map[common.Address]tokenInfo)
	for _, token := range append(spendable, chain.NativeToken) {
		info, err := bank.Token(token)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Hex(), err)
		}
		d.tokens[token] = tokenInfo{Symbol: info.Symbol, Decimals: info.Decimals}
	}

	return d, nil
}

// resolve accepts a demo account name, a token symbol or a hex address.
func (d *deployment) resolve(s string) (common.Address, error) {
	if addr, ok := d.accounts[strings.ToLower(s)]; ok {
		return addr, nil
	}
	for addr, info := range d.tokens {
		if strings.EqualFold(info.Symbol, s) {
			return addr, nil
		}
	}
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	return common.Address{}, fmt.Errorf("unknown account or address %q", s)
}

func (d *deployment) accountNames() []string {
	names := make([]string, 0, len(d.accounts))
	for name := range d.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *deployment) token(addr common.Address) tokenInfo {
	if info, ok := d.tokens[addr]; ok {
		return info
	}
	return tokenInfo{Symbol: addr.Hex(), Decimals: 18}
}
