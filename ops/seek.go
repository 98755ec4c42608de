package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Seek resolves a SEEK_DATA/SEEK_HOLE query against a single brick
// (spec.md SUPPLEMENTED FEATURES: "seek is position-only — it reports
// where the underlying brick sees a data/hole boundary scaled back up
// by K, and never clamps against InodeCtx's own size the way stat
// does"), retrying once on a recoverable error. The brick reports its
// local boundary offset in Reply.Size.
func (v *Volume) Seek(ctx context.Context, gfid [16]byte, offset int64, whence int) (int64, error) {
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)
	first := v.first(gfid)

	ictx.Mu().Lock()
	k := ictx.Config.Fragments
	ictx.Mu().Unlock()
	if k == 0 {
		k = v.Config.Fragments
	}

	var answer *ecfop.Fop
	f := v.run(ctx, "seek", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, live ec.Mask) (*ecfop.Fop, error) {
			var err error
			answer, err = v.dispatchOneWithRetry(ctx, live, first, ecbrick.OpSeek, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Offset: offset / int64(k), Flags: whence}
			}, ecfop.CombineSimple)
			return answer, err
		},
	})
	if err := fopError(f); err != nil {
		return 0, err
	}
	if f.Answer == nil || f.Answer.Reply == nil {
		return 0, syscall.EIO
	}
	return int64(f.Answer.Reply.Size) * int64(k), nil
}
