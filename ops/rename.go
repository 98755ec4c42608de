package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eciatt"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// RenameResult carries the up-to-5 iatts a rename reports (spec.md
// §4.5): the renamed inode, the old/new parent directories, and (if
// the rename overwrote an existing entry) that entry's inode.
type RenameResult struct {
	Iatts   [5]eciatt.Iatt
	IattCnt int
}

// Rename moves an entry from (oldParent, oldName) to (newParent,
// newName), locking both parent directories in gfid order (spec.md
// §4.2 two-lock family: "rename locks old_parent and new_parent,
// ordered by cmp(gfid)"). When oldParent == newParent only one lock is
// actually taken, since acquireLocks treats an identical Secondary as
// a no-op.
func (v *Volume) Rename(ctx context.Context, oldParent [16]byte, oldName string, newParent [16]byte, newName string) (*RenameResult, error) {
	oldCtx := v.inodeCtx(oldParent)
	newCtx := v.inodeCtx(newParent)

	f := v.run(ctx, "rename", 0, 0, v.liveMask(oldCtx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:            oldCtx,
				PrimaryFlags:       eclock.UpdateMeta,
				PrimaryExclusive:   true,
				Secondary:          newCtx,
				SecondaryFlags:     eclock.UpdateMeta,
				SecondaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpRename, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{ParentGfid: oldParent, Name: oldName, NewParent: newParent, NewName: newName}
			}, ecfop.CombineRename(true))
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			return nil
		},
	})
	if err := fopError(f); err != nil {
		return nil, err
	}

	result := &RenameResult{}
	if f.Answer != nil && f.Answer.Reply != nil {
		result.Iatts = f.Answer.Reply.Iatt
		result.IattCnt = f.Answer.Reply.IattCnt
	}
	return result, nil
}
