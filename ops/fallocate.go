package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Fallocate pre-allocates brick-local storage for [offset, offset+size)
// (spec.md §4.5), dispatched to every brick under an exclusive lock
// since it can extend the file the way a write does.
func (v *Volume) Fallocate(ctx context.Context, fd uint64, mode uint32, offset, size int64) error {
	return v.wholeFileOp(ctx, fd, "fallocate", ecbrick.OpFallocate, offset, size, mode)
}

// Discard punches a hole, dispatched identically to Fallocate.
func (v *Volume) Discard(ctx context.Context, fd uint64, offset, size int64) error {
	return v.wholeFileOp(ctx, fd, "discard", ecbrick.OpDiscard, offset, size, 0)
}

// Zerofill writes zeros over [offset, offset+size), dispatched
// identically to Fallocate.
func (v *Volume) Zerofill(ctx context.Context, fd uint64, offset, size int64) error {
	return v.wholeFileOp(ctx, fd, "zerofill", ecbrick.OpZerofill, offset, size, 0)
}

// wholeFileOp is the shared shape behind Fallocate/Discard/Zerofill:
// an fd-resolved, exclusively-locked, all-bricks dispatch whose offset
// and size are scaled down to brick-local units by K, and which
// invalidates any stripe cache entries it may have invalidated.
func (v *Volume) wholeFileOp(ctx context.Context, fd uint64, name string, op ecbrick.Op, offset, size int64, mode uint32) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	gfid := fdctx.Gfid
	ictx := v.inodeCtx(gfid)

	f := v.run(ctx, name, 0, 0, v.liveMask(ictx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:          ictx,
				PrimaryFlags:     eclock.UpdateData | eclock.UpdateMeta,
				PrimaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			ictx.Mu().Lock()
			k := ictx.Config.Fragments
			ictx.Mu().Unlock()
			if k == 0 {
				k = v.Config.Fragments
			}
			return ecfop.DispatchAll(ctx, v.Bricks, mask, k, op, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Offset: offset / int64(k), Size: size / int64(k), Mode: mode}
			}, ecfop.CombineSimple)
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			v.stripes.invalidate(gfid)
			return nil
		},
	})
	return fopError(f)
}
