package chain

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-vault/internal/domain"
)

type counter struct {
	value int
}

func (c *counter) Snapshot() any        { return c.value }
func (c *counter) Restore(snapshot any) { c.value = snapshot.(int) }

type collector struct {
	facts []domain.Fact
}

func (c *collector) Publish(facts []domain.Fact) {
	c.facts = append(c.facts, facts...)
}

func newTestEnv(t *testing.T) (*Env, *counter, *collector) {
	t.Helper()
	env := NewEnv(1_700_000_000)
	require.NoError(t, env.Bank().RegisterToken(tokenA, "TKA", 6))
	require.NoError(t, env.Bank().Mint(tokenA, alice, uint256.NewInt(1000)))
	c := &counter{}
	env.Track(c)
	sink := &collector{}
	env.Subscribe(sink)
	return env, c, sink
}

func TestEnv_AtomicCommit(t *testing.T) {
	env, c, sink := newTestEnv(t)

	err := env.Atomic(func() error {
		c.value = 7
		env.Emit(alice, domain.AssetRemoved{Asset: tokenA})
		return env.Bank().Transfer(tokenA, alice, bob, uint256.NewInt(100))
	})
	require.NoError(t, err)

	assert.Equal(t, 7, c.value)
	assert.Equal(t, uint64(100), env.Bank().BalanceOf(tokenA, bob).Uint64())
	require.Len(t, sink.facts, 1)
	assert.Equal(t, uint64(1), sink.facts[0].Seq)
	assert.Equal(t, domain.FactAssetRemoved, sink.facts[0].Kind())
	assert.Equal(t, uint64(1_700_000_000), sink.facts[0].Timestamp)
}

func TestEnv_AtomicRevert(t *testing.T) {
	env, c, sink := newTestEnv(t)
	boom := errors.New("boom")

	err := env.Atomic(func() error {
		c.value = 3
		env.Emit(alice, domain.AssetRemoved{Asset: tokenA})
		if err := env.Bank().Transfer(tokenA, alice, bob, uint256.NewInt(100)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, c.value)
	assert.True(t, env.Bank().BalanceOf(tokenA, bob).IsZero())
	assert.Empty(t, sink.facts)
}

func TestEnv_NestedScopes(t *testing.T) {
	env, c, sink := newTestEnv(t)

	err := env.Atomic(func() error {
		c.value = 1
		env.Emit(alice, domain.AssetAdded{Asset: tokenA})

		inner := env.Atomic(func() error {
			c.value = 2
			env.Emit(alice, domain.AssetRemoved{Asset: tokenA})
			_ = env.Bank().Transfer(tokenA, alice, bob, uint256.NewInt(5))
			return errors.New("inner fails")
		})
		assert.Error(t, inner)
		assert.Equal(t, 1, c.value, "inner rollback restores outer state")
		assert.Empty(t, sink.facts, "nothing published before outer commit")
		return nil
	})
	require.NoError(t, err)

	assert.True(t, env.Bank().BalanceOf(tokenA, bob).IsZero())
	require.Len(t, sink.facts, 1)
	assert.Equal(t, domain.FactAssetAdded, sink.facts[0].Kind())
}

func TestEnv_PanicReverts(t *testing.T) {
	env, c, _ := newTestEnv(t)

	assert.Panics(t, func() {
		_ = env.Atomic(func() error {
			c.value = 9
			_ = env.Bank().Transfer(tokenA, alice, bob, uint256.NewInt(5))
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, c.value)
	assert.True(t, env.Bank().BalanceOf(tokenA, bob).IsZero())
	assert.False(t, env.InScope())
}

func TestEnv_Simulate(t *testing.T) {
	env, c, sink := newTestEnv(t)

	var seen uint64
	err := env.Simulate(func() error {
		c.value = 5
		env.Emit(alice, domain.AssetRemoved{Asset: tokenA})
		if err := env.Bank().Transfer(tokenA, alice, bob, uint256.NewInt(40)); err != nil {
			return err
		}
		seen = env.Bank().BalanceOf(tokenA, bob).Uint64()
		assert.True(t, env.Simulating())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(40), seen)
	assert.True(t, env.Bank().BalanceOf(tokenA, bob).IsZero())
	assert.Equal(t, 0, c.value)
	assert.Empty(t, sink.facts)
	assert.False(t, env.Simulating())

	boom := errors.New("boom")
	err = env.Simulate(func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestEnv_EmitOutsideScope(t *testing.T) {
	env, _, sink := newTestEnv(t)

	env.Emit(alice, domain.AssetAdded{Asset: tokenA})
	env.Emit(alice, domain.AssetAdded{Asset: tokenA})

	require.Len(t, sink.facts, 2)
	assert.Equal(t, uint64(2), sink.facts[1].Seq)
}

func TestEnv_Clock(t *testing.T) {
	env := NewEnv(100)
	env.Advance(50)
	assert.Equal(t, uint64(150), env.Now())
	env.SetTime(120)
	assert.Equal(t, uint64(150), env.Now(), "clock does not run backwards")
	env.SetTime(200)
	assert.Equal(t, uint64(200), env.Now())
}
