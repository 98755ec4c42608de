package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Link adds a new name for an existing inode under a parent directory
// (spec.md §4.2 two-lock family): both the target inode (nlink update)
// and the parent directory (entry update) are locked, in gfid order.
func (v *Volume) Link(ctx context.Context, gfid, parent [16]byte, name string) (*LookupResult, error) {
	ictx := v.inodeCtx(gfid)
	pctx := v.inodeCtx(parent)

	f := v.run(ctx, "link", 0, 0, v.liveMask(ictx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:            ictx,
				PrimaryFlags:       eclock.UpdateMeta,
				PrimaryExclusive:   true,
				Secondary:          pctx,
				SecondaryFlags:     eclock.UpdateMeta,
				SecondaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpLink, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, ParentGfid: parent, Name: name}
			}, ecfop.CombineIatt(true))
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			return nil
		},
	})
	if err := fopError(f); err != nil {
		return nil, err
	}
	return &LookupResult{Iatt: answerIatt(f, 0)}, nil
}
