package inode

import (
	"testing"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReturnsSameContext(t *testing.T) {
	m := NewMap()
	gfid := [16]byte{1, 2, 3}

	a := m.GetOrCreate(gfid)
	b := m.GetOrCreate(gfid)
	require.Same(t, a, b)
	require.Equal(t, 1, m.Len())
}

func TestGetMissReturnsNil(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Get([16]byte{9}))
}

func TestForgetSkipsBusyContext(t *testing.T) {
	m := NewMap()
	gfid := [16]byte{4}
	ctx := m.GetOrCreate(gfid)
	ctx.Lock = nil

	m.Forget(gfid)
	require.Nil(t, m.Get(gfid), "unused context should be forgotten")

	ctx2 := m.GetOrCreate(gfid)
	ctx2.Mu().Lock()
	ctx2.Lock = eclock.NewLock(gfid, "data")
	ctx2.Mu().Unlock()

	m.Forget(gfid)
	require.NotNil(t, m.Get(gfid), "busy context must not be forgotten")
}

func TestFdCtxTracksOpenMask(t *testing.T) {
	fd := NewFdCtx([16]byte{1}, ec.NewMask(4), 0)
	require.EqualValues(t, 0b1111, fd.OpenMask)
}
