package ecfop

import (
	"context"

	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/eclock"
)

// Handler is the body a fop runs at each forward state (spec.md §4.1).
// Lock and Dispatch/Combine phases are driven by the engine itself;
// Handler supplies only the per-fop behaviour that differs between
// operations: building requests, interpreting the winning answer, and
// reporting a user-visible result.
type Handler interface {
	// Prepare runs at INIT: declare which inode(s)/fd this fop needs
	// locked and with which flags, by returning the lock spec. A nil
	// *LockSpec means this fop skips LOCK/UNLOCK entirely (lookup,
	// statfs, ipc, heal — spec.md §4.1).
	Prepare(ctx context.Context) (*LockSpec, error)

	// Dispatch runs at DISPATCH, once locks (if any) are held, and
	// returns the completed Fop from one of the Dispatch* functions.
	Dispatch(ctx context.Context, mask ec.Mask) (*Fop, error)

	// PrepareAnswer runs at PREPARE_ANSWER: turn the winning Cbk into
	// whatever the handler ultimately reports, recording any update
	// flags this fop's lock links should carry into LOCK_REUSE.
	PrepareAnswer(f *Fop) error
}

// LockSpec is what a Handler's Prepare returns: up to two inode locks
// to acquire, ordered per spec.md §4.2 ("ordered by cmp(gfid_a,
// gfid_b)").
type LockSpec struct {
	Primary   *eclock.InodeCtx
	PrimaryFlags eclock.Flags
	PrimaryExclusive bool

	Secondary   *eclock.InodeCtx
	SecondaryFlags eclock.Flags
	SecondaryExclusive bool
}

// Engine drives the state machine described in spec.md §4.1 for one
// fop, using mgr for lock assignment/release.
type Engine struct {
	mgr *eclock.Manager
	log *zap.SugaredLogger
}

// NewEngine constructs an Engine over the given lock Manager.
func NewEngine(mgr *eclock.Manager, log *zap.SugaredLogger) *Engine {
	return &Engine{mgr: mgr, log: log}
}

// Run drives h through INIT -> ... -> END, returning the final *Fop
// (with Answer/Error populated) once REPORT/LOCK_REUSE/UNLOCK have
// run. id/name/xlator/uid/gid populate the Fop's identity fields.
func (e *Engine) Run(ctx context.Context, id uint64, xlator, name string, uid, gid uint32, mask ec.Mask, h Handler) *Fop {
	f := NewFop(id, xlator, name, uid, gid)
	f.Mask = mask
	f.State = StateInit

	spec, err := h.Prepare(ctx)
	if err != nil {
		f.SetError(err)
		f.State = StateEnd
		return f
	}

	var links []ownedLink
	if spec != nil {
		f.State = StateLock
		links = e.acquireLocks(ctx, f, spec)
		if f.Error != nil {
			// Skip DISPATCH but still run LOCK_REUSE on every link
			// acquireLocks queued, so a failed fop releases them.
			f.State = StateLockReuse
			for _, l := range links {
				e.mgr.NextOwner(l.ictx, l.link, false, false)
			}
			f.State = StateEnd
			return f
		}
	}

	f.State = StateDispatch
	dispatched, err := h.Dispatch(ctx, f.Mask)
	if dispatched != nil {
		f.cbkList = dispatched.cbkList
		f.Answer = dispatched.Answer
		f.Good = dispatched.Good
		f.Received = dispatched.Received
	}
	if err != nil {
		f.SetError(err)
	}

	f.State = StatePrepareAnswer
	if f.Error == nil {
		if err := h.PrepareAnswer(f); err != nil {
			f.SetError(err)
		}
	}

	f.State = StateReport
	// REPORT is a no-op in this engine: the handler already populated
	// whatever user-visible result it needs onto f during
	// PrepareAnswer. Kept as a distinct state to match spec.md's
	// five-state tail and as the natural place future metrics/logging
	// hooks attach.

	f.State = StateLockReuse
	committed := f.Error == nil
	contended := answerContended(f)
	if contended && e.log != nil {
		e.log.Debugw("lock contention observed, forcing immediate release", "fop", name, "id", f.ID)
	}
	for _, l := range links {
		e.mgr.NextOwner(l.ictx, l.link, committed, contended)
	}

	f.State = StateUnlock
	// unlock_lock itself runs asynchronously from NextOwner (delayed
	// timer or immediate release); nothing further to drive here.

	f.State = StateEnd
	return f
}

// ownedLink pairs an acquired LockLink with the InodeCtx it was
// acquired against, so LOCK_REUSE can call NextOwner on the right lock
// without guessing from the link alone.
type ownedLink struct {
	ictx *eclock.InodeCtx
	link *eclock.LockLink
}

// acquireLocks runs prepare_inode/prepare_fd's two-lock ordering rule
// (spec.md §4.2): the primary and secondary contexts are locked in
// cmp(gfid_a, gfid_b) order, each via assign_owner, waiting and
// (if this fop is the first acquirer) performing inodelk+xattrop.
func (e *Engine) acquireLocks(ctx context.Context, f *Fop, spec *LockSpec) []ownedLink {
	type want struct {
		ictx  *eclock.InodeCtx
		flags eclock.Flags
		excl  bool
	}
	order := []want{{spec.Primary, spec.PrimaryFlags, spec.PrimaryExclusive}}
	if spec.Secondary != nil && spec.Secondary != spec.Primary {
		second := want{spec.Secondary, spec.SecondaryFlags, spec.SecondaryExclusive}
		if eclock.CompareGfid(spec.Secondary.Gfid, spec.Primary.Gfid) < 0 {
			order = []want{second, order[0]}
		} else {
			order = append(order, second)
		}
	}

	links := make([]ownedLink, 0, len(order))
	for _, w := range order {
		link := eclock.NewLockLink(0, w.excl, w.flags)
		link.Update = w.flags.Update()
		w.ictx.Mu().Lock()
		if w.ictx.Lock == nil {
			w.ictx.Lock = eclock.NewLock(w.ictx.Gfid, "data")
		}
		dec := e.mgr.AssignOwner(w.ictx, link)
		w.ictx.Mu().Unlock()

		switch dec {
		case eclock.MustWait:
			link.Wait()
		case eclock.BecomeOwnerFirst:
			good, err := e.mgr.PerformAcquire(ctx, w.ictx, w.ictx.Lock)
			if err != nil {
				f.SetError(err)
			} else {
				f.Mask = f.Mask.And(good)
			}
		}
		links = append(links, ownedLink{ictx: w.ictx, link: link})
	}
	return links
}

// answerContended reports whether the winning answer's reply carried
// evidence of lock contention (spec.md §4.2: "INODELK_DOM_COUNT > 1"
// in xdata).
func answerContended(f *Fop) bool {
	if f.Answer == nil || f.Answer.Reply == nil || f.Answer.Reply.Xdata == nil {
		return false
	}
	if v, ok := f.Answer.Reply.Xdata["inodelk-dom-count"]; ok {
		if n, ok := v.(int); ok {
			return n > 1
		}
	}
	return false
}
