package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Access checks permission bits against a single brick, retrying once
// on a recoverable error (spec.md §4.1 single-brick family).
func (v *Volume) Access(ctx context.Context, gfid [16]byte, mask_ int) error {
	ictx := v.inodeCtx(gfid)
	liveMask := v.liveMask(ictx, false)
	first := v.first(gfid)

	f := v.run(ctx, "access", 0, 0, liveMask, &genericHandler{
		dispatch: func(ctx context.Context, live ec.Mask) (*ecfop.Fop, error) {
			return v.dispatchOneWithRetry(ctx, live, first, ecbrick.OpAccess, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Mode: uint32(mask_)}
			}, ecfop.CombineSimple)
		},
	})
	return fopError(f)
}
