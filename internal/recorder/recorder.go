// Package recorder turns committed facts into persisted records. It assigns
// deterministic ids, writes the journal, meters every fact and forwards the
// records to the live feed.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/idhash"
	"portfolio-vault/internal/observability"
	"portfolio-vault/internal/shares"
	"portfolio-vault/internal/storage"
	"portfolio-vault/internal/units"
)

// Broadcaster receives records after they are persisted.
type Broadcaster interface {
	Broadcast(records []*domain.FactRecord)
}

// Recorder is a chain.FactSink. Publish only queues; Run does the I/O so the
// committing call scope never waits on a database.
type Recorder struct {
	facts  storage.FactStore
	feed   Broadcaster
	logger *zap.Logger
	queue  chan []domain.Fact
}

// New creates a recorder. feed may be nil.
func New(facts storage.FactStore, feed Broadcaster, logger *zap.Logger, buffer int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		facts:  facts,
		feed:   feed,
		logger: logger,
		queue:  make(chan []domain.Fact, buffer),
	}
}

// Publish queues a committed batch. It blocks when the queue is full.
func (r *Recorder) Publish(facts []domain.Fact) {
	if len(facts) == 0 {
		return
	}
	r.queue <- append([]domain.Fact(nil), facts...)
}

// Run records queued batches until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case batch := <-r.queue:
			r.record(ctx, batch)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case batch := <-r.queue:
			r.record(context.Background(), batch)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, batch []domain.Fact) {
	if _, err := r.Record(ctx, batch); err != nil {
		r.logger.Warn("record facts", zap.Int("facts", len(batch)), zap.Error(err))
	}
}

// Record persists and broadcasts one batch synchronously. Records are
// broadcast even when persistence fails: the facts are already committed.
func (r *Recorder) Record(ctx context.Context, batch []domain.Fact) ([]*domain.FactRecord, error) {
	records := make([]*domain.FactRecord, 0, len(batch))
	for _, f := range batch {
		meter(f)
		rec, err := ToRecord(f)
		if err != nil {
			observability.RecordFact(string(f.Kind()), err)
			r.logger.Warn("encode fact", zap.Uint64("seq", f.Seq), zap.String("kind", string(f.Kind())), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	err := r.persist(ctx, records)
	for _, rec := range records {
		observability.RecordFact(string(rec.Kind), err)
		r.logger.Debug("fact recorded",
			zap.String("fact_id", rec.FactID),
			zap.String("kind", string(rec.Kind)),
			zap.Int64("seq", rec.Seq),
		)
	}

	if r.feed != nil {
		r.feed.Broadcast(records)
	}
	return records, err
}

// persist writes the batch atomically. A replayed batch collides with rows
// already journaled; it is then written row by row, skipping duplicates.
func (r *Recorder) persist(ctx context.Context, records []*domain.FactRecord) error {
	err := r.facts.InsertBulk(ctx, records)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return err
	}

	for _, rec := range records {
		if err := r.facts.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
	}
	return nil
}

// meter updates the activity counters for a committed fact.
func meter(f domain.Fact) {
	switch ev := f.Event.(type) {
	case domain.Deposit:
		observability.RecordDeposit()
	case domain.Withdraw:
		observability.RecordWithdraw()
	case domain.Swap:
		observability.RecordSwaps("vault", 1)
	case domain.Multicall:
		if ev.Swaps > 0 {
			observability.RecordSwaps("helper", ev.Swaps)
		}
	case domain.ExitFeeCollected:
		observability.RecordFeeShares(string(domain.FeeKindExit), units.Float(ev.Shares, shares.Decimals))
	case domain.ManagementFeeCollected:
		observability.RecordFeeShares(string(domain.FeeKindManagement), units.Float(ev.Shares, shares.Decimals))
	case domain.PerformanceFeeAccrued:
		observability.RecordFeeShares(string(domain.FeeKindPerformance), units.Float(ev.Shares, shares.Decimals))
	}
}

// ToRecord converts a committed fact into its persisted form.
func ToRecord(f domain.Fact) (*domain.FactRecord, error) {
	if f.Event == nil {
		return nil, fmt.Errorf("fact %d: %w", f.Seq, storage.ErrInvalidInput)
	}
	payload, err := json.Marshal(f.Event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", f.Kind(), err)
	}
	return &domain.FactRecord{
		FactID:    idhash.ComputeFactID(f.Emitter, f.Seq, f.Kind(), f.Timestamp),
		Emitter:   f.Emitter.Hex(),
		Seq:       int64(f.Seq),
		Kind:      f.Kind(),
		Timestamp: int64(f.Timestamp),
		Payload:   payload,
	}, nil
}
