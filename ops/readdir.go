package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Readdir lists directory entries from a single brick, retrying once
// on a recoverable error (spec.md §4.1 single-brick family), resuming
// from the fd's last offset. When the live mask doesn't cover every
// configured brick, it submits a background heal request for this
// directory (spec.md SUPPLEMENTED FEATURES: "readdir observing a
// brick missing from the mask is itself evidence of need_heal and
// should nudge the heal pool, not just silently read around it").
func (v *Volume) Readdir(ctx context.Context, fd uint64, offset uint64, plus bool) ([]ecbrick.DirEntry, error) {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return nil, syscall.EBADF
	}
	gfid := fdctx.Gfid
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)
	first := v.first(gfid)

	if full := v.mask(); mask.Popcount() < full.Popcount() {
		v.requestBackgroundHeal(gfid, gfid, "", true)
	}

	op := ecbrick.OpReaddir
	if plus {
		op = ecbrick.OpReaddirp
	}

	var answer *ecfop.Fop
	f := v.run(ctx, "readdir", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, live ec.Mask) (*ecfop.Fop, error) {
			var err error
			answer, err = v.dispatchOneWithRetry(ctx, live, first, op, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, FD: fd, Offset: int64(offset)}
			}, ecfop.CombineSimple)
			return answer, err
		},
	})
	if err := fopError(f); err != nil {
		return nil, err
	}
	if f.Answer == nil || f.Answer.Reply == nil {
		return nil, nil
	}

	fdctx.Mu().Lock()
	fdctx.LastOffset = offset + uint64(len(f.Answer.Reply.Entries))
	fdctx.Mu().Unlock()

	return f.Answer.Reply.Entries, nil
}

// Readdirp is Readdir with inode attributes attached to each entry.
func (v *Volume) Readdirp(ctx context.Context, fd uint64, offset uint64) ([]ecbrick.DirEntry, error) {
	return v.Readdir(ctx, fd, offset, true)
}
