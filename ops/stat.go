package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Stat fetches gfid's attributes from a single brick, retrying once on
// a recoverable failure (spec.md §4.1, §4.5). The reported size is
// always InodeCtx's own CurrentSize, never the brick's untrusted value.
func (v *Volume) Stat(ctx context.Context, gfid [16]byte) (*LookupResult, error) {
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)
	first := v.first(gfid)

	var answer *ecfop.Fop
	f := v.run(ctx, "stat", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			var err error
			answer, err = v.dispatchOneWithRetry(ctx, mask, first, ecbrick.OpStat, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid}
			}, ecfop.CombineIatt(false))
			return answer, err
		},
	})
	if err := fopError(f); err != nil {
		return nil, err
	}

	ia := answerIatt(f, 0)
	ictx.Mu().Lock()
	ia.Size = ictx.CurrentSize()
	ictx.Mu().Unlock()
	return &LookupResult{Iatt: ia}, nil
}

// Fstat is Stat resolved through an already-open fd rather than a bare
// gfid (spec.md §6 fd-scoped fops).
func (v *Volume) Fstat(ctx context.Context, fd uint64) (*LookupResult, error) {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return nil, syscall.EBADF
	}
	return v.Stat(ctx, fdctx.Gfid)
}
