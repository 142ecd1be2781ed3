package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/observability"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/storage"
	"portfolio-vault/internal/units"
)

// VaultState is the read side of a vault the sampler needs.
type VaultState interface {
	Address() common.Address
	TotalSupply() *uint256.Int
	CalculateTotalValue() (*uint256.Int, error)
	CalculateValueComposition() ([]*uint256.Int, error)
	HighWaterMark() *uint256.Int
	HighWaterMarkPerShare() (*uint256.Int, error)
	PerformanceFeeReserve() *uint256.Int
	LastCollectManagementFee() uint64
	LastCollectPerformanceFee() uint64
}

// SamplerConfig wires a Sampler.
type SamplerConfig struct {
	Vault        VaultState
	BaseDecimals uint8
	// BlockTime returns the host clock in seconds.
	BlockTime func() uint64
	// Lock serializes reads with whatever mutates the vault.
	Lock      sync.Locker
	Snapshots storage.SnapshotStore
	NAV       storage.NAVStore
	Logger    *zap.Logger
}

// Sampler periodically records vault snapshots and NAV points.
type Sampler struct {
	cfg SamplerConfig
}

// NewSampler creates a sampler. Either store may be nil.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	return &Sampler{cfg: cfg}
}

// Run samples every interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, _, err := s.Sample(ctx, now); err != nil {
				s.cfg.Logger.Warn("nav sample failed", zap.Error(err))
			}
		}
	}
}

// Sample reads the vault once and persists the result.
func (s *Sampler) Sample(ctx context.Context, now time.Time) (*domain.NAVPoint, *domain.VaultSnapshot, error) {
	point, snap, err := s.read(now)
	if err != nil {
		return nil, nil, err
	}

	if s.cfg.NAV != nil {
		if err := s.cfg.NAV.InsertBulk(ctx, []*domain.NAVPoint{point}); err != nil {
			return nil, nil, fmt.Errorf("insert nav point: %w", err)
		}
	}
	if s.cfg.Snapshots != nil {
		err := s.cfg.Snapshots.Insert(ctx, snap)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			// The block clock has not moved since the last sample.
			s.cfg.Logger.Debug("snapshot unchanged", zap.Int64("timestamp", snap.Timestamp))
		case err != nil:
			return nil, nil, fmt.Errorf("insert vault snapshot: %w", err)
		}
	}

	observability.RecordNAVSample(now.Unix())
	s.cfg.Logger.Debug("nav sampled",
		zap.Float64("total_value", point.TotalValue),
		zap.Float64("value_per_share", point.ValuePerShare),
	)
	return point, snap, nil
}

func (s *Sampler) read(now time.Time) (*domain.NAVPoint, *domain.VaultSnapshot, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	v := s.cfg.Vault
	dec := s.cfg.BaseDecimals

	total, err := v.CalculateTotalValue()
	if err != nil {
		return nil, nil, fmt.Errorf("total value: %w", err)
	}
	composition, err := v.CalculateValueComposition()
	if err != nil {
		return nil, nil, fmt.Errorf("value composition: %w", err)
	}
	hwmPerShare, err := v.HighWaterMarkPerShare()
	if err != nil {
		return nil, nil, fmt.Errorf("high-water mark per share: %w", err)
	}
	supply := v.TotalSupply()
	reserve := v.PerformanceFeeReserve()

	point := &domain.NAVPoint{
		Vault:       v.Address().Hex(),
		TimestampMs: now.UnixMilli(),
		TotalValue:  units.Float(total, dec),
		TotalSupply: units.Float(supply, shares.Decimals),
		Composition: make([]float64, len(composition)),
	}
	if point.TotalSupply > 0 {
		point.ValuePerShare = point.TotalValue / point.TotalSupply
	}
	for i, c := range composition {
		point.Composition[i] = units.Float(c, dec)
	}

	snap := &domain.VaultSnapshot{
		Vault:                     point.Vault,
		Timestamp:                 int64(s.cfg.BlockTime()),
		TotalSupply:               supply.Dec(),
		TotalValue:                total.Dec(),
		HighWaterMark:             v.HighWaterMark().Dec(),
		PerformanceFeeReserve:     reserve.Dec(),
		LastCollectManagementFee:  int64(v.LastCollectManagementFee()),
		LastCollectPerformanceFee: int64(v.LastCollectPerformanceFee()),
	}

	observability.UpdateVaultState(
		point.TotalValue,
		point.TotalSupply,
		units.Float(reserve, shares.Decimals),
		units.Float(hwmPerShare, dec),
	)
	return point, snap, nil
}
