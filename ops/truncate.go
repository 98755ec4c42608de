package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Truncate resizes gfid to size (spec.md §4.5): the brick-local length
// rounds size up to a whole stripe first, since a brick only ever
// holds whole fragments of a stripe; if the new size doesn't land on a
// stripe boundary, the tail stripe is then reconstructed, zero-filled
// past the new end-of-file, and re-encoded back to every surviving
// brick so the shrunken file's last stripe stays decodable (the same
// head/tail reconstruction writev does for a partial-stripe write).
func (v *Volume) Truncate(ctx context.Context, gfid [16]byte, size int64) error {
	ictx := v.inodeCtx(gfid)

	f := v.run(ctx, "truncate", 0, 0, v.liveMask(ictx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:          ictx,
				PrimaryFlags:     eclock.UpdateData | eclock.UpdateMeta,
				PrimaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			ictx.Mu().Lock()
			cfg := ictx.Config
			ictx.Mu().Unlock()
			if cfg.Nodes == 0 {
				cfg = v.Config
			}
			k := cfg.Fragments
			stripeSize := cfg.StripeSize()
			fragSize := cfg.FragmentSize()

			alignedSize := alignUp(size, stripeSize)
			brickSize := alignedSize / int64(k)

			af, err := ecfop.DispatchAll(ctx, v.Bricks, mask, k, ecbrick.OpTruncate, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Size: brickSize}
			}, ecfop.CombineSimple)
			if err != nil {
				return af, err
			}

			tail := size % stripeSize
			if tail == 0 {
				return af, nil
			}

			first := v.first(gfid)
			stripeOff := alignDown(size, stripeSize)
			brickOffset := stripeOff / int64(k)

			stripe := make([]byte, stripeSize)
			if present, _, _, rerr := v.readFragments(ctx, gfid, mask, first, brickOffset, fragSize); rerr == nil {
				if shards, derr := v.Codec.Decode(present); derr == nil {
					buf := make([]byte, 0, stripeSize)
					for _, s := range shards {
						buf = append(buf, s...)
					}
					copy(stripe, buf)
				}
			}
			for i := tail; i < stripeSize; i++ {
				stripe[i] = 0
			}

			shards := make([][]byte, k)
			for i := 0; i < k; i++ {
				shards[i] = stripe[int64(i)*fragSize : int64(i+1)*fragSize]
			}
			encoded, eerr := v.Codec.Encode(shards)
			if eerr != nil {
				return af, eerr
			}
			return ecfop.DispatchAll(ctx, v.Bricks, mask, k, ecbrick.OpWritev, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, Offset: brickOffset, Data: encoded[idx]}
			}, ecfop.CombineSimple)
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			v.stripes.invalidate(gfid)
			ictx.Mu().Lock()
			ictx.PostSize = uint64(size)
			ictx.Mu().Unlock()
			return nil
		},
	})
	return fopError(f)
}

// Ftruncate resolves an fd handle back to its gfid and calls Truncate.
func (v *Volume) Ftruncate(ctx context.Context, fd uint64, size int64) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	return v.Truncate(ctx, fdctx.Gfid, size)
}
