package ops

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
)

// Getxattr reads a user xattr from a single brick, retrying once on a
// recoverable error.
func (v *Volume) Getxattr(ctx context.Context, gfid [16]byte, key string) ([]byte, error) {
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)
	first := v.first(gfid)

	var answer *ecfop.Fop
	f := v.run(ctx, "getxattr", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, live ec.Mask) (*ecfop.Fop, error) {
			var err error
			answer, err = v.dispatchOneWithRetry(ctx, live, first, ecbrick.OpGetxattr, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, XattrKey: key}
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
	return f.Answer.Reply.Data, nil
}

// Setxattr dispatches a user xattr write to every configured brick
// under an exclusive metadata lock, matching the all-bricks-must-agree
// rule every other metadata mutation follows.
func (v *Volume) Setxattr(ctx context.Context, gfid [16]byte, key string, value []byte) error {
	return v.xattrMutate(ctx, "setxattr", ecbrick.OpSetxattr, gfid, key, value)
}

// Removexattr removes a user xattr from every configured brick.
func (v *Volume) Removexattr(ctx context.Context, gfid [16]byte, key string) error {
	return v.xattrMutate(ctx, "removexattr", ecbrick.OpRemovexattr, gfid, key, nil)
}

func (v *Volume) xattrMutate(ctx context.Context, name string, op ecbrick.Op, gfid [16]byte, key string, value []byte) error {
	ictx := v.inodeCtx(gfid)

	f := v.run(ctx, name, 0, 0, v.liveMask(ictx, false), &genericHandler{
		prepare: func(ctx context.Context) (*ecfop.LockSpec, error) {
			return &ecfop.LockSpec{
				Primary:          ictx,
				PrimaryFlags:     eclock.UpdateMeta,
				PrimaryExclusive: true,
			}, nil
		},
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, op, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid, XattrKey: key, XattrValue: value}
			}, ecfop.CombineSimple)
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			f.Committed = true
			return nil
		},
	})
	return fopError(f)
}

// Fgetxattr/Fsetxattr/Fremovexattr resolve an fd handle back to its
// gfid and otherwise behave like their non-f counterparts.
func (v *Volume) Fgetxattr(ctx context.Context, fd uint64, key string) ([]byte, error) {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return nil, syscall.EBADF
	}
	return v.Getxattr(ctx, fdctx.Gfid, key)
}

func (v *Volume) Fsetxattr(ctx context.Context, fd uint64, key string, value []byte) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	return v.Setxattr(ctx, fdctx.Gfid, key, value)
}

func (v *Volume) Fremovexattr(ctx context.Context, fd uint64, key string) error {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return syscall.EBADF
	}
	return v.Removexattr(ctx, fdctx.Gfid, key)
}

// Xattrop issues a raw ADD_ARRAY64 xattrop against every brick in the
// inode's live mask, healing bricks included. It takes no lock and
// bypasses the fop engine. The lock manager's own version/size
// discovery does not use it; that runs through brickLockOps.Xattrop in
// graph.go.
func (v *Volume) Xattrop(ctx context.Context, gfid [16]byte, dict map[string][]int64) (map[string][]int64, error) {
	mask := v.liveMask(v.inodeCtx(gfid), true)
	f, err := ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpXattrop, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: gfid, XattropDict: dict}
	}, ecfop.CombineSimple)
	if err != nil {
		return nil, err
	}
	if f.Answer == nil || f.Answer.Reply == nil {
		return nil, nil
	}
	return f.Answer.Reply.XattropResult, nil
}

// Fxattrop is Xattrop resolved through an fd handle.
func (v *Volume) Fxattrop(ctx context.Context, fd uint64, dict map[string][]int64) (map[string][]int64, error) {
	fdctx := v.fdCtx(fd)
	if fdctx == nil {
		return nil, syscall.EBADF
	}
	return v.Xattrop(ctx, fdctx.Gfid, dict)
}
