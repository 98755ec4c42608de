package ops

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eccodec"
	"github.com/gluster-labs/ec-core/echeal"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
	"github.com/gluster-labs/ec-core/ecxattr"
)

// NewTranslator wires a complete running instance: the lock manager's
// brick-facing operations, the heal engine and its admission pool, and
// the Volume every handler in this package hangs off.
//
// This constructor is the one place that wires eclock, echeal, and
// ecfop together: eclock and echeal import neither each other nor
// ecfop, ecfop builds on eclock but not on echeal, and none of them
// imports ops, so no package beneath ops depends on all three. ops
// already depends on all of them, so the top-level wiring lives here
// instead of in a package named after the bottom of the stack.
func NewTranslator(bricks []ecbrick.Client, codec eccodec.Codec, cfg ec.Config, log *zap.SugaredLogger, reg prometheus.Registerer) *Volume {
	lockOps := &brickLockOps{bricks: bricks, fragments: cfg.Fragments}
	mgr := eclock.NewManager(lockOps, log)

	healEngine := echeal.NewEngine(bricks, codec, cfg, log)
	pool := echeal.NewPool(healEngine, cfg, reg)

	return NewVolume(bricks, codec, cfg, mgr, pool, log)
}

// brickLockOps implements eclock.LockOps directly against the brick
// set (spec.md §4.2): the inodelk/xattrop/unlock round every first
// lock acquisition and every release performs, expressed with the
// same ecfop.DispatchAll fan-out every other all-bricks fop uses.
type brickLockOps struct {
	bricks    []ecbrick.Client
	fragments int
}

func (o *brickLockOps) Inodelk(ctx context.Context, l *eclock.Lock) error {
	mask := ec.NewMask(len(o.bricks))
	f, err := ecfop.DispatchAll(ctx, o.bricks, mask, o.fragments, ecbrick.OpInodelk, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: l.Gfid, LockDomain: l.Domain, LockCmd: ecbrick.SetLKW, LockType: ecbrick.WriteLock}
	}, ecfop.CombineSimple)
	if err == nil && f.Answer.OpRet < 0 {
		err = f.Answer.OpErrno
	}
	if err != nil {
		return errors.Wrap(ec.ErrLockFailed, err.Error())
	}

	l.Mu().Lock()
	l.Mask = f.Good
	l.GoodMask = f.Good
	l.Mu().Unlock()
	return nil
}

func (o *brickLockOps) Xattrop(ctx context.Context, l *eclock.Lock, ictx *eclock.InodeCtx) error {
	l.Mu().Lock()
	mask := l.GoodMask
	l.Mu().Unlock()

	dict := map[string][]int64{"version": {0, 0}, "dirty": {1, 1}, "size": {0}}
	f, err := ecfop.DispatchAll(ctx, o.bricks, mask, o.fragments, ecbrick.OpXattrop, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: l.Gfid, XattropDict: dict}
	}, ecfop.CombineSimple)
	if err != nil {
		return err
	}

	l.Mu().Lock()
	l.GoodMask = f.Good
	l.Mu().Unlock()

	if f.Answer == nil || f.Answer.Reply == nil {
		return ec.ErrMetadataCorrupt
	}
	reply := f.Answer.Reply

	ictx.Mu().Lock()
	defer ictx.Mu().Unlock()
	ictx.PreVersion = reply.Version
	ictx.PostVersion = reply.Version
	ictx.Dirty = reply.Dirty
	ictx.PreSize = reply.Size
	ictx.PostSize = reply.Size
	ictx.HaveVersion = true
	ictx.HaveSize = true
	if len(reply.Config) > 0 {
		if cfg, cerr := ecxattr.DecodeConfig(reply.Config); cerr == nil {
			ictx.Config = cfg
			ictx.HaveConfig = true
		}
	}
	return nil
}

func (o *brickLockOps) Unlock(ctx context.Context, l *eclock.Lock, ictx *eclock.InodeCtx, version, dirty [2]int64, size int64) error {
	l.Mu().Lock()
	mask := l.GoodMask
	l.Mu().Unlock()

	dict := map[string][]int64{"version": version[:], "dirty": dirty[:], "size": {size}}
	if _, err := ecfop.DispatchAll(ctx, o.bricks, mask, o.fragments, ecbrick.OpXattrop, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: l.Gfid, XattropDict: dict}
	}, ecfop.CombineSimple); err != nil {
		return err
	}

	_, err := ecfop.DispatchAll(ctx, o.bricks, mask, o.fragments, ecbrick.OpInodelk, func(idx int) *ecbrick.Request {
		return &ecbrick.Request{Gfid: l.Gfid, LockDomain: l.Domain, LockCmd: ecbrick.Unlock}
	}, ecfop.CombineSimple)
	return err
}
