// Package ops implements the per-operation handlers (spec.md §4.5):
// one function per fop, each built on the ecfop state-machine skeleton
// and sharing the Volume wiring (bricks, codec, lock manager, fop
// engine, heal pool) the way the teacher's rawBridge methods all hang
// off one FileSystemConnector.
package ops

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eccodec"
	"github.com/gluster-labs/ec-core/echeal"
	"github.com/gluster-labs/ec-core/eciatt"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
	"github.com/gluster-labs/ec-core/inode"
)

// Volume is the running translator instance every handler in this
// package operates against.
type Volume struct {
	Bricks []ecbrick.Client
	Codec  eccodec.Codec
	Config ec.Config

	Inodes *inode.Map
	Locks  *eclock.Manager
	Engine *ecfop.Engine
	Heals  *echeal.Pool
	Log    *zap.SugaredLogger

	fopID   uint64
	rrFirst uint64

	stripes *stripeCache

	fdMu  sync.Mutex
	fdSeq uint64
	fds   map[uint64]*inode.FdCtx
}

// NewVolume wires a Volume over an already-constructed lock manager
// and heal pool (NewTranslator builds both and hands them here).
func NewVolume(bricks []ecbrick.Client, codec eccodec.Codec, cfg ec.Config, locks *eclock.Manager, heals *echeal.Pool, log *zap.SugaredLogger) *Volume {
	return &Volume{
		Bricks:  bricks,
		Codec:   codec,
		Config:  cfg,
		Inodes:  inode.NewMap(),
		Locks:   locks,
		Engine:  ecfop.NewEngine(locks, log),
		Heals:   heals,
		Log:     log,
		stripes: newStripeCache(cfg.StripeCacheSize),
		fds:     make(map[uint64]*inode.FdCtx),
	}
}

func (v *Volume) nextID() uint64 { return atomic.AddUint64(&v.fopID, 1) }

// openFd registers a freshly opened FdCtx and returns its handle.
func (v *Volume) openFd(fd *inode.FdCtx) uint64 {
	v.fdMu.Lock()
	defer v.fdMu.Unlock()
	v.fdSeq++
	v.fds[v.fdSeq] = fd
	return v.fdSeq
}

// fdCtx resolves a handle back to its FdCtx, or nil if it was never
// opened or has since been flushed/closed.
func (v *Volume) fdCtx(fd uint64) *inode.FdCtx {
	v.fdMu.Lock()
	defer v.fdMu.Unlock()
	return v.fds[fd]
}

// closeFd drops a handle from the table (spec.md §6 flush/fsync tear
// down the fd's own bookkeeping; the brick-side close itself is the
// flush fop's job, not this table's).
func (v *Volume) closeFd(fd uint64) {
	v.fdMu.Lock()
	defer v.fdMu.Unlock()
	delete(v.fds, fd)
}

// mask is the full configured brick set, before any per-lock "up"
// restriction is applied.
func (v *Volume) mask() ec.Mask { return ec.NewMask(v.Config.Nodes) }

// first picks the starting brick for a single- or K-brick dispatch per
// Config.ReadPolicy (spec.md §4.1).
func (v *Volume) first(gfid [16]byte) int {
	if v.Config.ReadPolicy == ec.ReadPolicyGfidHash {
		var h uint32
		for _, b := range gfid {
			h = h*31 + uint32(b)
		}
		if v.Config.Nodes == 0 {
			return 0
		}
		return int(h % uint32(v.Config.Nodes))
	}
	n := atomic.AddUint64(&v.rrFirst, 1)
	if v.Config.Nodes == 0 {
		return 0
	}
	return int(n % uint64(v.Config.Nodes))
}

// liveMask narrows the full configured mask down to the bricks the
// held lock most recently proved reachable, minus any brick currently
// healing, unless internal is true (spec.md §4.1 "further restrict to
// the parent's mask \ healing unless this fop is an internal op that
// must run on every configured brick"). Before any lock has ever been
// acquired on ictx (GoodMask still zero), the full configured mask is
// used instead.
func (v *Volume) liveMask(ictx *eclock.InodeCtx, internal bool) ec.Mask {
	ictx.Mu().Lock()
	l := ictx.Lock
	ictx.Mu().Unlock()
	if l == nil {
		return v.mask()
	}

	l.Mu().Lock()
	good := l.GoodMask
	healing := l.Healing
	l.Mu().Unlock()

	if good.Empty() {
		good = v.mask()
	}
	if internal {
		return good
	}
	return good.AndNot(healing)
}

// inodeCtx looks up or creates the InodeCtx for gfid and seeds its
// Config on first reference, the way a fresh inode learns its EC shape
// from the CONFIG xattr on first lock acquisition (spec.md §4.4); here
// it is seeded directly from the running Volume's Config since no
// brick round-trip is needed to know the group's own shape.
func (v *Volume) inodeCtx(gfid [16]byte) *eclock.InodeCtx {
	ictx := v.Inodes.GetOrCreate(gfid)
	ictx.Mu().Lock()
	if ictx.Config.Nodes == 0 {
		ictx.Config = v.Config
	}
	ictx.Mu().Unlock()
	return ictx
}

// genericHandler adapts a closure-based fop body to ecfop.Handler, so
// each file in this package supplies only the three functions that
// differ per operation instead of declaring a new named type.
type genericHandler struct {
	prepare       func(ctx context.Context) (*ecfop.LockSpec, error)
	dispatch      func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error)
	prepareAnswer func(f *ecfop.Fop) error
}

func (h *genericHandler) Prepare(ctx context.Context) (*ecfop.LockSpec, error) {
	if h.prepare == nil {
		return nil, nil
	}
	return h.prepare(ctx)
}

func (h *genericHandler) Dispatch(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
	return h.dispatch(ctx, mask)
}

func (h *genericHandler) PrepareAnswer(f *ecfop.Fop) error {
	if h.prepareAnswer == nil {
		return nil
	}
	return h.prepareAnswer(f)
}

// run drives name through the engine with a handler built from the
// three supplied closures, returning the completed Fop.
func (v *Volume) run(ctx context.Context, name string, uid, gid uint32, mask ec.Mask, h *genericHandler) *ecfop.Fop {
	return v.Engine.Run(ctx, v.nextID(), "ec0", name, uid, gid, mask, h)
}

// fopError turns a completed Fop's engine error or failing answer into
// the single error every handler in this package returns (spec.md §7
// "each fop returns (op_ret, op_errno) as produced by the chosen
// answer group; on engine error, op_ret=-1, op_errno from the
// taxonomy").
func fopError(f *ecfop.Fop) error {
	if f.Error != nil {
		return f.Error
	}
	if f.Answer != nil && f.Answer.OpRet < 0 {
		return f.Answer.OpErrno
	}
	return nil
}

// answerIatt returns the idx'th iatt slot of f's winning answer, or a
// zero Iatt if there is none.
func answerIatt(f *ecfop.Fop, idx int) eciatt.Iatt {
	if f.Answer == nil || f.Answer.Reply == nil {
		return eciatt.Iatt{}
	}
	return f.Answer.Reply.Iatt[idx]
}

// dispatchOneWithRetry implements spec.md §4.1's "one-shot retry for
// read-only single-brick ops": dispatch to a single brick, and if the
// answer fails with a recoverable errno, mask that brick off and retry
// once more on another, up to exhaustion of mask. The handlers for
// access, readlink, seek, stat, and readdir all share this shape.
func (v *Volume) dispatchOneWithRetry(ctx context.Context, mask ec.Mask, first int, op ecbrick.Op, reqFn ecfop.RequestFunc, combine ecfop.CombineFunc) (*ecfop.Fop, error) {
	f, err := ecfop.DispatchOne(ctx, v.Bricks, mask, first, op, reqFn, combine)
	if err != nil {
		return f, err
	}

	tried := f.Mask
	for f.Answer != nil && f.Answer.OpRet < 0 && ec.IsRecoverableRead(f.Answer.OpErrno) {
		next, nerr := ecfop.RetryOne(ctx, v.Bricks, mask, tried, op, reqFn, combine)
		if nerr != nil {
			// No untried brick left; report the last known answer
			// rather than failing the whole fop on exhaustion.
			break
		}
		f = next
		tried = tried.Or(f.Mask)
	}
	return f, nil
}
