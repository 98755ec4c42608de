package ecfop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
)

// statOps is a minimal eclock.LockOps that grants inodelk/xattrop
// unconditionally, for driving Engine.Run without real brick RPCs.
type statOps struct{ mask ec.Mask }

func (o *statOps) Inodelk(ctx context.Context, l *eclock.Lock) error {
	l.Mask, l.GoodMask = o.mask, o.mask
	return nil
}
func (o *statOps) Xattrop(ctx context.Context, l *eclock.Lock, ictx *eclock.InodeCtx) error {
	ictx.HaveVersion = true
	return nil
}
func (o *statOps) Unlock(ctx context.Context, l *eclock.Lock, ictx *eclock.InodeCtx, version, dirty [2]int64, size int64) error {
	return nil
}

// accessHandler drives an access-like fop: lock the inode shared,
// dispatch to every brick, succeed if any reply group answers ok.
type accessHandler struct {
	ictx    *eclock.InodeCtx
	bricks  []ecbrick.Client
	gfid    [16]byte
	k       int
	reached bool
}

func (h *accessHandler) Prepare(ctx context.Context) (*LockSpec, error) {
	return &LockSpec{Primary: h.ictx, PrimaryFlags: eclock.QueryInfo, PrimaryExclusive: false}, nil
}

func (h *accessHandler) Dispatch(ctx context.Context, mask ec.Mask) (*Fop, error) {
	return DispatchAll(ctx, h.bricks, mask, h.k, ecbrick.OpAccess, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: h.gfid}
	}, CombineSimple)
}

func (h *accessHandler) PrepareAnswer(f *Fop) error {
	h.reached = true
	return nil
}

func TestEngineRunDrivesAccessThroughAllStates(t *testing.T) {
	clients, fakes := newBrickSet(6)
	gfid := [16]byte{7}
	req := &ecbrick.Request{Gfid: gfid, ParentGfid: [16]byte{}, Name: "f", Mode: 0100644}
	for _, b := range fakes {
		_, err := b.Do(context.Background(), ecbrick.OpCreate, req)
		require.NoError(t, err)
	}

	ictx := eclock.NewInodeCtx(gfid)
	ictx.Config = ec.Config{Nodes: 6, Fragments: 4, Redundancy: 2, EagerLock: true}
	ictx.Lock = eclock.NewLock(gfid, "data")

	mgr := eclock.NewManager(&statOps{mask: ec.NewMask(6)}, nil)
	engine := NewEngine(mgr, nil)

	h := &accessHandler{ictx: ictx, bricks: clients, gfid: gfid, k: 4}
	f := engine.Run(context.Background(), 1, "ec0", "access", 0, 0, ec.NewMask(6), h)

	require.NoError(t, f.Error)
	require.True(t, h.reached)
	require.Equal(t, StateEnd, f.State)
	require.NotNil(t, f.Answer)
}
