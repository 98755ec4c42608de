package echeal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
)

func TestHealReportsHealthyWhenAllBricksAgree(t *testing.T) {
	engine, fakes := newTestEngine(6)
	gfid := [16]byte{1}
	for _, b := range fakes {
		_, err := b.Do(context.Background(), ecbrick.OpCreate, &ecbrick.Request{Gfid: gfid, ParentGfid: [16]byte{}, Name: "a", Mode: 0100644})
		require.NoError(t, err)
	}

	res, err := engine.Heal(context.Background(), gfid, [16]byte{}, "a", ec.NewMask(6), false, false)
	require.NoError(t, err)
	require.True(t, res.Healthy)
	require.True(t, res.Sinks.Empty())
}

func TestHealDataHealsSinkFromSources(t *testing.T) {
	engine, fakes := newTestEngine(6)
	gfid := [16]byte{2}
	for _, b := range fakes {
		_, err := b.Do(context.Background(), ecbrick.OpCreate, &ecbrick.Request{Gfid: gfid, ParentGfid: [16]byte{}, Name: "b", Mode: 0100644})
		require.NoError(t, err)
	}

	payload := make([]byte, 4096*4) // one full stripe across K=4
	for i := range payload {
		payload[i] = byte(i)
	}
	for i := 0; i < 4; i++ {
		_, err := fakes[i].Do(context.Background(), ecbrick.OpWritev, &ecbrick.Request{Gfid: gfid, Offset: 0, Data: payload[i*4096 : (i+1)*4096]})
		require.NoError(t, err)
	}
	// Bump brick 0..3's version so they are the agreeing "source" group,
	// leaving bricks 4,5 behind (simulating a missed write).
	for i := 0; i < 4; i++ {
		_, err := fakes[i].Do(context.Background(), ecbrick.OpXattrop, &ecbrick.Request{
			Gfid: gfid, XattropDict: map[string][]int64{"version": {1, 0}, "size": {4096 * 4}},
		})
		require.NoError(t, err)
	}

	res, err := engine.Heal(context.Background(), gfid, [16]byte{}, "b", ec.NewMask(6), false, false)
	require.NoError(t, err)
	require.False(t, res.Healthy)
	require.Equal(t, 4, res.Sources.Popcount())
	require.True(t, res.Sinks.Has(4))
	require.True(t, res.Sinks.Has(5))
}

func TestEntryHealRecreatesMissingName(t *testing.T) {
	engine, fakes := newTestEngine(6)
	dir := [16]byte{}
	gfid := [16]byte{3}

	for i := 0; i < 5; i++ {
		_, err := fakes[i].Do(context.Background(), ecbrick.OpCreate, &ecbrick.Request{Gfid: gfid, ParentGfid: dir, Name: "c", Mode: 0100644})
		require.NoError(t, err)
	}

	engine.entryHeal(context.Background(), ec.NewMask(6), dir)

	reply, err := fakes[5].Do(context.Background(), ecbrick.OpReaddirp, &ecbrick.Request{Gfid: dir})
	require.NoError(t, err)
	found := false
	for _, e := range reply.Entries {
		if e.Name == "c" {
			found = true
		}
	}
	require.True(t, found, "entry heal should have recreated 'c' on the missing brick")
}
