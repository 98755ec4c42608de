package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Lk passes a POSIX byte-range lock request through to every
// configured brick (spec.md §6): unlike inodelk/entrylk, lk is a
// user-visible advisory lock and carries no version/size discovery,
// so it dispatches plainly with no LockSpec.
func (v *Volume) Lk(ctx context.Context, fd uint64, cmd ecbrick.LockCmd, typ ecbrick.LockType, offset, length int64) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	ictx := v.inodeCtx(fdctx.Gfid)
	mask := v.liveMask(ictx, false)

	f := v.run(ctx, "lk", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpLk, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: fdctx.Gfid, FD: fd, LockCmd: cmd, LockType: typ, LockOffset: offset, LockLen: length}
			}, ecfop.CombineSimple)
		},
	})
	return fopError(f)
}
