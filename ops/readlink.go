package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Readlink reads a symlink target from a single brick, retrying once
// on a recoverable error (spec.md §4.1 single-brick family).
func (v *Volume) Readlink(ctx context.Context, gfid [16]byte, size int) (string, error) {
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)
	first := v.first(gfid)

	var answer *ecfop.Fop
	f := v.run(ctx, "readlink", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, live ec.Mask) (*ecfop.Fop, error) {
			var err error
			answer, err = v.dispatchOneWithRetry(ctx, live, first, ecbrick.OpReadlink, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Size: int64(size)}
			}, func(a, b *ecfop.Cbk) bool {
				return a.OpRet == b.OpRet && a.OpErrno == b.OpErrno
			})
			return answer, err
		},
	})
	if err := fopError(f); err != nil {
		return "", err
	}
	if f.Answer == nil || f.Answer.Reply == nil {
		return "", nil
	}
	return string(f.Answer.Reply.Data), nil
}
