package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Flush dispatches to every brick the fd is open on and then forgets
// the handle (spec.md §6: "flush tears down the fd's own bookkeeping;
// it does not itself release the inode lock").
func (v *Volume) Flush(ctx context.Context, fd uint64) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	ictx := v.inodeCtx(fdctx.Gfid)
	mask := v.liveMask(ictx, false).And(fdctx.OpenMask)

	f := v.run(ctx, "flush", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpFlush, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: fdctx.Gfid, FD: fd}
			}, ecfop.CombineSimple)
		},
	})
	v.closeFd(fd)
	return fopError(f)
}

// Fsync dispatches a durability barrier to every brick the fd is open
// on (spec.md §4.5); unlike Flush it leaves the fd table entry intact.
func (v *Volume) Fsync(ctx context.Context, fd uint64, dataOnly bool) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	ictx := v.inodeCtx(fdctx.Gfid)
	mask := v.liveMask(ictx, false).And(fdctx.OpenMask)

	op := ecbrick.OpFsync
	if fdctx.IsDir {
		op = ecbrick.OpFsyncdir
	}

	f := v.run(ctx, "fsync", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, op, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: fdctx.Gfid, FD: fd, Flags: boolToInt(dataOnly)}
			}, ecfop.CombineSimple)
		},
	})
	return fopError(f)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
