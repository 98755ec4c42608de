package eclock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
)

// unlockDelay is the fixed one-second grace period from spec.md §4.2
// "Unlock timing": an owner-less lock is not released immediately but
// given a chance for the same client to reuse it.
const unlockDelay = time.Second

// LockOps performs the actual brick-facing work a Manager needs: the
// inodelk round that acquires a lock, the batched xattrop that reads
// VERSION/SIZE/CONFIG while marking DIRTY, and the combined
// xattrop+unlock that releases it. This is the seam between eclock's
// queueing/refcounting logic (pure, testable without any brick) and
// ecbrick's actual RPCs; ops.brickLockOps supplies the concrete
// implementation.
type LockOps interface {
	// Inodelk issues inodelk(F_SETLKW, F_WRLCK) across mask ∩ up with
	// minimum ALL, and on success sets l.Mask = l.GoodMask = the
	// bricks that answered. Returns an error satisfying
	// ec.ErrLockFailed on failure.
	Inodelk(ctx context.Context, l *Lock) error

	// Xattrop performs the batched post-acquisition read of VERSION/
	// SIZE/CONFIG and DIRTY-marking described in spec.md §4.2 and
	// §4.4, and updates ictx's have_* flags and pre_version/pre_size/
	// config. Implementations narrow l.GoodMask to the bricks that
	// succeeded; PerformAcquire returns that mask to the caller.
	Xattrop(ctx context.Context, l *Lock, ictx *InodeCtx) error

	// Unlock performs the combined xattrop(ADD_ARRAY64) of VERSION/
	// SIZE/DIRTY followed by inodelk(F_UNLCK) (spec.md §4.2
	// unlock_lock).
	Unlock(ctx context.Context, l *Lock, ictx *InodeCtx, version, dirty [2]int64, size int64) error
}

// Decision is the outcome of AssignOwner: what the caller must do next.
type Decision int

const (
	// BecomeOwnerFirst means this link is now in Owners and, since
	// the lock was not already acquired, this fop must perform the
	// actual Inodelk+Xattrop round before dispatching.
	BecomeOwnerFirst Decision = iota
	// BecomeOwnerReuse means this link is now in Owners and the lock
	// is already acquired (eager-lock reuse); no inodelk is needed.
	BecomeOwnerReuse
	// MustWait means the link was queued in Waiting or Frozen; the
	// caller must call link.Wait() and re-evaluate.
	MustWait
)

// Manager implements assign_owner, lock_reuse, unlock_timer_add, and
// unlock_lock (spec.md §4.2).
type Manager struct {
	ops         LockOps
	log         *zap.SugaredLogger
	shuttingDown int32
}

// NewManager constructs a Manager backed by ops.
func NewManager(ops LockOps, log *zap.SugaredLogger) *Manager {
	return &Manager{ops: ops, log: log}
}

// Shutdown flips the shutting-down flag: delayed unlocks become
// immediate (spec.md §5). Heal admission does not consult this flag.
func (m *Manager) Shutdown() { atomic.StoreInt32(&m.shuttingDown, 1) }

func (m *Manager) isShuttingDown() bool { return atomic.LoadInt32(&m.shuttingDown) != 0 }

// AssignOwner runs spec.md §4.2's five-step protocol. Caller must hold
// ictx.Mu() before calling (the per-inode mutex precedes the lock's
// own mutex in the ordering from spec.md §5).
func (m *Manager) AssignOwner(ictx *InodeCtx, link *LockLink) Decision {
	l := ictx.Lock
	l.mu.Lock()
	defer l.mu.Unlock()

	// Step 1.
	if l.RefsPending > 0 {
		l.RefsPending--
	}

	// Step 2.
	if l.Release {
		l.Frozen = append(l.Frozen, link)
		return MustWait
	}

	tookOverTimerRef := false
	// Step 3.
	if l.timer != nil {
		if l.timer.Cancel() {
			tookOverTimerRef = true
		} else {
			// Cancellation race: the timer is already firing. Clearing
			// l.timer below is the marker: the fire callback checks it
			// under l.mu and becomes a no-op. We still take over the
			// ref it represented, since from this fop's point of view
			// the lock is still logically held.
			tookOverTimerRef = true
		}
		l.timer = nil
	}

	// Step 4.
	mustWait := len(l.Owners) > 0 && (!l.Acquired || link.Exclusive)
	if mustWait {
		l.Waiting = append(l.Waiting, link)
		return MustWait
	}

	l.Owners = append(l.Owners, link)
	if !tookOverTimerRef {
		l.RefsOwners++
	}

	// Step 5.
	if link.Exclusive {
		l.Exclusive++
	}

	if !l.Acquired {
		return BecomeOwnerFirst
	}
	return BecomeOwnerReuse
}

// PerformAcquire runs the first-acquirer's inodelk+xattrop round
// described in spec.md §4.2 "Lock acquisition": inodelk(F_SETLKW,
// F_WRLCK) across mask ∩ up with minimum ALL, then (on success) the
// batched xattrop reading VERSION/SIZE/CONFIG and marking DIRTY.
// Returns the mask of bricks that succeeded the xattrop — callers
// must restrict their own dispatch mask to it ("parent.mask &=
// fop.good"). CompleteAcquire always runs to record the outcome; on
// success it promotes the fops queued behind EC_FLAG_WAITING_XATTROP.
func (m *Manager) PerformAcquire(ctx context.Context, ictx *InodeCtx, l *Lock) (ec.Mask, error) {
	if err := m.ops.Inodelk(ctx, l); err != nil {
		m.CompleteAcquire(ictx, l, false)
		return 0, errors.Wrap(err, "inodelk")
	}

	xerr := m.ops.Xattrop(ctx, l, ictx)

	l.mu.Lock()
	good := l.GoodMask
	l.mu.Unlock()

	m.CompleteAcquire(ictx, l, true)
	if xerr != nil {
		return good, errors.Wrap(xerr, "xattrop")
	}
	return good, nil
}

// CompleteAcquire records the result of the Inodelk+Xattrop round run
// by the fop that received BecomeOwnerFirst. On success, and unless an
// exclusive owner holds the lock, it moves the leading shared links
// queued behind EC_FLAG_WAITING_XATTROP (spec.md §4.2) into Owners and
// wakes them. Exclusive waiters, and every waiter after a failed
// acquisition, stay in Waiting until lock_reuse promotes them.
func (m *Manager) CompleteAcquire(ictx *InodeCtx, l *Lock, ok bool) {
	l.mu.Lock()
	l.Acquired = ok
	var promoted []*LockLink
	if ok && l.Exclusive == 0 {
		i := 0
		for i < len(l.Waiting) && !l.Waiting[i].Exclusive {
			i++
		}
		promoted = l.Waiting[:i]
		l.Waiting = l.Waiting[i:]
		l.Owners = append(l.Owners, promoted...)
		l.RefsOwners += uint32(len(promoted))
	}
	l.mu.Unlock()
	for _, w := range promoted {
		w.Wake()
	}
}

// wakeShared promotes leading waiters into owners the way spec.md
// §4.2's lock_reuse describes ("promote shared waiters and move them
// to owners"): if the waiting head is exclusive, only that one fop is
// promoted (an exclusive fop never coexists with anything); otherwise
// every leading SHARED waiter is promoted, stopping at the first
// exclusive one. Caller must hold l.mu and l.Owners must be empty.
func wakeShared(l *Lock) {
	if len(l.Waiting) == 0 {
		return
	}

	var promoted []*LockLink
	if l.Waiting[0].Exclusive {
		promoted = l.Waiting[:1]
		l.Waiting = l.Waiting[1:]
	} else {
		i := 0
		for i < len(l.Waiting) && !l.Waiting[i].Exclusive {
			i++
		}
		promoted = l.Waiting[:i]
		l.Waiting = l.Waiting[i:]
	}

	for _, w := range promoted {
		l.Owners = append(l.Owners, w)
		l.RefsOwners++
		if w.Exclusive {
			l.Exclusive++
		}
	}
	for _, w := range promoted {
		w.Wake()
	}
}

// NextOwner implements lock_reuse (spec.md §4.2): called by a fop
// after REPORT, once per lock it held. committed records whether the
// fop's update actually succeeded (gates post_version increment);
// contended reports whether this reply observed INODELK_DOM_COUNT>1.
func (m *Manager) NextOwner(ictx *InodeCtx, link *LockLink, committed bool, contended bool) {
	l := ictx.Lock

	l.mu.Lock()
	for i, o := range l.Owners {
		if o == link {
			l.Owners = append(l.Owners[:i], l.Owners[i+1:]...)
			break
		}
	}
	if link.Exclusive {
		if l.Exclusive > 0 {
			l.Exclusive--
		}
	}

	eagerLock := ictx.Config.EagerLock
	release := !eagerLock || contended
	l.Release = l.Release || release

	ownersEmpty := len(l.Owners) == 0
	if ownersEmpty {
		wakeShared(l)
		ownersEmpty = len(l.Owners) == 0
	}
	l.mu.Unlock()

	if committed {
		ictx.mu.Lock()
		upd := link.Update
		if upd[Data] {
			ictx.PostVersion[Data]++
		}
		if upd[Metadata] {
			ictx.PostVersion[Metadata]++
		}
		ictx.mu.Unlock()
	}

	m.unlockTimerAdd(ictx, link, ownersEmpty)
}

// unlockTimerAdd implements spec.md §4.2's unlock_timer_add: on the
// final fop's departure from owners, either unlock immediately
// (release set, or shutting down), or schedule the 1-second delayed
// release, or do nothing if other owners remain.
func (m *Manager) unlockTimerAdd(ictx *InodeCtx, link *LockLink, ownersEmpty bool) {
	l := ictx.Lock

	l.mu.Lock()
	if !ownersEmpty {
		if l.RefsOwners > 0 {
			l.RefsOwners--
		}
		l.mu.Unlock()
		return
	}

	release := l.Release || m.isShuttingDown()
	l.mu.Unlock()

	if release {
		m.unlockNow(ictx, l)
		return
	}

	done := make(chan struct{})
	l.mu.Lock()
	var h *timerHandle
	h = scheduleUnlockTimer(unlockDelay, func() {
		l.mu.Lock()
		if l.timer != h {
			// AssignOwner lost the cancel race and cleared l.timer:
			// the lock has a new owner, so this fire is a no-op.
			l.mu.Unlock()
			return
		}
		l.timer = nil
		l.Release = true
		l.mu.Unlock()
		m.unlockNow(ictx, l)
		close(done)
	})
	l.timer = h
	l.mu.Unlock()
}

// unlockNow performs the actual xattrop+inodelk(F_UNLCK) release
// (spec.md §4.2 unlock_lock) and then unfreezes the lock.
func (m *Manager) unlockNow(ictx *InodeCtx, l *Lock) {
	ctxVal := context.Background()

	ictx.mu.Lock()
	var version, dirty [2]int64
	nodeMask := ec.NewMask(ictx.Config.Nodes)
	allGood := nodeMask != 0 && nodeMask.IsSubset(l.GoodMask)
	for t := 0; t < int(numTxClasses); t++ {
		version[t] = ictx.PostVersion[t] - ictx.PreVersion[t]
		if allGood {
			dirty[t] = -ictx.Dirty[t]
		}
	}
	size := int64(ictx.PostSize) - int64(ictx.PreSize)
	ictx.mu.Unlock()

	err := m.ops.Unlock(ctxVal, l, ictx, version, dirty, size)
	if err != nil && m.log != nil {
		m.log.Debugw("unlock failed, dirty counters remain positive", "gfid", l.Gfid, "domain", l.Domain, "err", err)
	}

	ictx.mu.Lock()
	if err == nil {
		ictx.PreVersion = ictx.PostVersion
		ictx.PreSize = ictx.PostSize
		if allGood {
			ictx.Dirty = [2]int64{}
		}
	}
	ictx.mu.Unlock()

	m.unfreeze(ictx, l)
}

// unfreeze runs the tail of unlock_lock: frozen -> waiting, clear
// acquired/refs_owners, and either destroy the lock or hand it to the
// next waiter.
func (m *Manager) unfreeze(ictx *InodeCtx, l *Lock) {
	l.mu.Lock()
	l.Waiting = append(l.Waiting, l.Frozen...)
	l.Frozen = nil
	l.Acquired = false
	l.Release = false
	l.RefsOwners = 0
	l.Mask = 0
	l.GoodMask = 0
	waiting := l.Waiting
	empty := l.Empty()
	l.mu.Unlock()

	ictx.mu.Lock()
	if empty {
		ictx.Lock = nil
	}
	ictx.mu.Unlock()

	if !empty && len(waiting) > 0 {
		head := waiting[0]
		l.mu.Lock()
		l.Waiting = waiting[1:]
		l.Owners = append(l.Owners, head)
		l.RefsOwners++
		if head.Exclusive {
			l.Exclusive++
		}
		l.mu.Unlock()
		head.Wake()
	}
}

// SetHealing ORs bricks into l.Healing so concurrent fops don't treat
// them as authoritative and subtracts them from the candidate good
// set seen by dispatch (spec.md §4.6 "Cooperation with fops").
func (l *Lock) SetHealing(bricks ec.Mask) {
	l.mu.Lock()
	l.Healing = l.Healing.Or(bricks)
	l.mu.Unlock()
}

// ClearHealing removes bricks from l.Healing once heal completes.
func (l *Lock) ClearHealing(bricks ec.Mask) {
	l.mu.Lock()
	l.Healing = l.Healing.AndNot(bricks)
	l.mu.Unlock()
}
