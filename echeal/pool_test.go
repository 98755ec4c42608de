package echeal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eccodec"
)

func newTestEngine(n int) (*Engine, []*ecbrick.FakeBrick) {
	clients := make([]ecbrick.Client, n)
	fakes := make([]*ecbrick.FakeBrick, n)
	for i := 0; i < n; i++ {
		b := ecbrick.NewFakeBrick(i)
		fakes[i] = b
		clients[i] = b
	}
	codec, _ := eccodec.New(4, 2, 4096)
	cfg := ec.Config{Nodes: n, Fragments: 4, Redundancy: n - 4, BackgroundHeals: 1, HealWaitQLen: 1}
	return NewEngine(clients, codec, cfg, nil), fakes
}

func TestPoolRejectsWhenWaitQueueFull(t *testing.T) {
	// BackgroundHeals=1, HealWaitQLen=1: with the one active slot held
	// and the one wait slot reserved, a third admission must fail fast
	// with ec.ErrHealBusy (spec.md §4.6 "Background throttling").
	engine, _ := newTestEngine(6)
	pool := NewPool(engine, engine.Config, nil)

	require.NoError(t, pool.sem.Acquire(context.Background(), 1)) // occupy the active slot
	require.True(t, pool.reserveWaitSlot())                       // occupy the wait slot

	_, err := pool.Submit(context.Background(), Request{Gfid: [16]byte{2}, Mask: ec.NewMask(6)}, false)
	require.ErrorIs(t, err, ec.ErrHealBusy)

	pool.releaseWaitSlot()
	pool.sem.Release(1)
}

func TestPoolRunsHealWhenSlotAvailable(t *testing.T) {
	engine, fakes := newTestEngine(6)
	pool := NewPool(engine, engine.Config, nil)

	gfid := [16]byte{9}
	for _, b := range fakes {
		_, err := b.Do(context.Background(), ecbrick.OpCreate, &ecbrick.Request{Gfid: gfid, ParentGfid: [16]byte{}, Name: "f", Mode: 0100644})
		require.NoError(t, err)
	}

	res, err := pool.Submit(context.Background(), Request{Gfid: gfid, Mask: ec.NewMask(6)}, false)
	require.NoError(t, err)
	require.True(t, res.Healthy, "freshly created file on all bricks should already be healthy")
}
