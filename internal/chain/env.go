// Package chain models the serialized transactional host the vault runs in:
// a journaled token bank, a block clock, and atomic call scopes whose
// mutations are either committed together or reverted together.
package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"portfolio-vault/internal/domain"
)

// Journaled is implemented by components holding state outside the bank.
// Snapshot returns an opaque copy of that state; Restore reinstates it.
type Journaled interface {
	Snapshot() any
	Restore(snapshot any)
}

// FactSink receives facts from committed outermost call scopes, in commit order.
type FactSink interface {
	Publish(facts []domain.Fact)
}

var errSimulated = errors.New("simulation scope")

// Env is the host environment shared by vaults, helpers and protocol stubs.
// It is not safe for concurrent use; callers serialize access.
type Env struct {
	bank       *Bank
	now        uint64
	seq        uint64
	depth      int
	simulating int
	tracked    []Journaled
	pending    []domain.Fact
	sinks      []FactSink
}

// NewEnv creates an environment with an empty bank and the clock set to now.
func NewEnv(now uint64) *Env {
	return &Env{
		bank: NewBank(),
		now:  now,
	}
}

// Bank returns the token ledger.
func (e *Env) Bank() *Bank {
	return e.bank
}

// Now returns the current block timestamp in seconds.
func (e *Env) Now() uint64 {
	return e.now
}

// SetTime moves the clock to t. The clock never runs backwards.
func (e *Env) SetTime(t uint64) {
	if t > e.now {
		e.now = t
	}
}

// Advance moves the clock forward by seconds.
func (e *Env) Advance(seconds uint64) {
	e.now += seconds
}

// Track registers a component whose state must follow call-scope rollback.
func (e *Env) Track(j Journaled) {
	e.tracked = append(e.tracked, j)
}

// Subscribe registers a sink for committed facts.
func (e *Env) Subscribe(sink FactSink) {
	e.sinks = append(e.sinks, sink)
}

// InScope reports whether a call scope is active.
func (e *Env) InScope() bool {
	return e.depth > 0
}

// Simulating reports whether the active scope will be reverted unconditionally.
func (e *Env) Simulating() bool {
	return e.simulating > 0
}

// Emit records an event. Inside a scope the event is buffered until the
// outermost scope commits; outside a scope it is committed immediately.
func (e *Env) Emit(emitter common.Address, ev domain.Event) {
	e.pending = append(e.pending, domain.Fact{
		Emitter:   emitter,
		Timestamp: e.now,
		Event:     ev,
	})
	if e.depth == 0 {
		e.commit()
	}
}

// Atomic runs fn in a call scope. If fn returns an error or panics, every
// bank mutation, tracked component change and buffered fact from the scope
// is discarded. Scopes nest; only the outermost scope publishes facts.
func (e *Env) Atomic(fn func() error) (err error) {
	revision := e.bank.Snapshot()
	tracked := e.tracked[:len(e.tracked):len(e.tracked)]
	snapshots := make([]any, len(tracked))
	for i, t := range tracked {
		snapshots[i] = t.Snapshot()
	}
	mark := len(e.pending)

	e.depth++
	defer func() {
		e.depth--
		r := recover()
		if r != nil || err != nil {
			e.bank.RevertToSnapshot(revision)
			for i := len(tracked) - 1; i >= 0; i-- {
				tracked[i].Restore(snapshots[i])
			}
			e.pending = e.pending[:mark]
		}
		if e.depth == 0 {
			if r == nil && err == nil && e.simulating == 0 {
				e.commit()
			}
			e.pending = e.pending[:0]
			e.bank.discardJournal()
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn()
}

// Simulate runs fn in a scope that is always reverted and returns fn's error.
// It executes the same code path as a committed call.
func (e *Env) Simulate(fn func() error) error {
	e.simulating++
	defer func() { e.simulating-- }()

	err := e.Atomic(func() error {
		if err := fn(); err != nil {
			return err
		}
		return errSimulated
	})
	if errors.Is(err, errSimulated) {
		return nil
	}
	return err
}

func (e *Env) commit() {
	if len(e.pending) == 0 {
		return
	}
	facts := make([]domain.Fact, len(e.pending))
	for i, f := range e.pending {
		e.seq++
		f.Seq = e.seq
		facts[i] = f
	}
	e.pending = e.pending[:0]
	for _, s := range e.sinks {
		s.Publish(facts)
	}
}
