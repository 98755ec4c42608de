package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Unlink removes a directory entry, locking the parent directory
// exclusively under the metadata class (spec.md §4.5).
func (v *Volume) Unlink(ctx context.Context, parent [16]byte, name string) error {
	return v.removeEntry(ctx, "unlink", ecbrick.OpUnlink, parent, name)
}

// Rmdir removes an empty subdirectory entry, dispatched identically to
// Unlink.
func (v *Volume) Rmdir(ctx context.Context, parent [16]byte, name string) error {
	return v.removeEntry(ctx, "rmdir", ecbrick.OpRmdir, parent, name)
}

func (v *Volume) removeEntry(ctx context.Context, opName string, op ecbrick.Op, parent [16]byte, name string) error {
	pctx := v.inodeCtx(parent)

	f := v.run(ctx, opName, 0, 0, v.liveMask(pctx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:          pctx,
				PrimaryFlags:     eclock.UpdateMeta,
				PrimaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, op, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{ParentGfid: parent, Name: name}
			}, ecfop.CombineSimple)
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			return nil
		},
	})
	return fopError(f)
}
