// Package eclock implements the inode-scoped distributed lock manager
// (spec.md §4.2): lock assignment with delayed release, eager reuse,
// contention detection, and the version/size/config discovery that
// rides on the first acquisition's batched xattrop.
package eclock

import (
	"sync"

	"github.com/gluster-labs/ec-core/ec"
)

// TxClass indexes the two update classes every lock tracks separately
// (spec.md §3): data writes and metadata writes each have their own
// version/dirty counters.
type TxClass int

const (
	Data TxClass = iota
	Metadata
	numTxClasses
)

// Flags a fop declares when requesting a lock (spec.md §4.2).
type Flags uint32

const (
	UpdateData Flags = 1 << iota
	UpdateMeta
	QueryInfo
	InodeSize
)

// Update reports which TxClasses these Flags mark as updated.
func (f Flags) Update() [2]bool {
	return [2]bool{f&UpdateData != 0, f&UpdateMeta != 0}
}

// InodeCtx is the per-inode state described in spec.md §3: the single
// Lock this inode currently has (if any), discovery flags, and the
// version/size/dirty counters the lock manager and heal engine read
// and update. One InodeCtx exists per live inode (spec.md lifecycle);
// the owning map is inode.Map.
type InodeCtx struct {
	mu sync.Mutex

	Gfid [16]byte

	// Lock is the sole Lock object for this inode (invariant I3);
	// reused across fops rather than recreated per fop.
	Lock *Lock

	HaveInfo, HaveVersion, HaveSize, HaveConfig bool

	PreVersion  [2]int64
	PostVersion [2]int64
	PreSize     uint64
	PostSize    uint64
	Dirty       [2]int64

	Config ec.Config
}

// NewInodeCtx returns a fresh, empty context for gfid.
func NewInodeCtx(gfid [16]byte) *InodeCtx {
	return &InodeCtx{Gfid: gfid}
}

// Mu returns the per-inode mutex guarding the ctx and its Lock field
// (spec.md §5 ordering: inode mutex before fop mutex before brick).
func (c *InodeCtx) Mu() *sync.Mutex { return &c.mu }

// CurrentSize returns the inode's best-known size for readers that
// don't own the write: PreSize and PostSize only ever diverge between
// an update fop's prepare_answer and its eventual unlock_lock, which is
// exactly the window where PostSize holds the fresher value (spec.md
// §4.2: "pre ← post" happens only at successful unlock). Taking the
// max of the two means a racing reader sees the in-flight size without
// unlock having to special-case anything. Callers must hold Mu().
func (c *InodeCtx) CurrentSize() uint64 {
	if c.PostSize > c.PreSize {
		return c.PostSize
	}
	return c.PreSize
}

// LockLink is a single fop's reference to a Lock (spec.md §3): it
// travels through owners/waiting/frozen queues and carries the
// per-fop view needed to run lock_reuse and unlock bookkeeping.
type LockLink struct {
	ID        uint64
	Exclusive bool
	Flags     Flags

	// Update marks, once this link became an owner and its fop
	// committed, which TxClasses it updated (spec.md §4.2 "increment
	// ctx.post_version[t] for each transaction class listed in its
	// update flags").
	Update [2]bool

	// Release is set true by the fop once contention or shutdown is
	// observed (spec.md invariant I5); it ORs into Lock.Release at
	// lock_reuse time.
	Release bool

	// Size is populated by the lock-free size-discovery lookup for a
	// parent inode flagged InodeSize (spec.md §4.2 "Size discovery").
	Size uint64

	// woken is closed exactly once, when this link transitions from
	// waiting/frozen into owners and should resume running. This is
	// the Go-idiomatic rendering of spec.md §5's cooperative "sleep":
	// the fop's own goroutine blocks in Wait() instead of
	// the whole state machine stepping through a non-blocking
	// transition table.
	woken     chan struct{}
	wokenOnce sync.Once
}

// NewLockLink allocates a link ready to be queued by a Manager.
func NewLockLink(id uint64, exclusive bool, flags Flags) *LockLink {
	return &LockLink{ID: id, Exclusive: exclusive, Flags: flags, woken: make(chan struct{})}
}

// Wake resumes whatever goroutine is blocked in Wait. Idempotent.
func (l *LockLink) Wake() {
	l.wokenOnce.Do(func() { close(l.woken) })
}

// Wait blocks until Wake is called.
func (l *LockLink) Wait() { <-l.woken }

// Lock is the per-(inode,domain) distributed lock object (spec.md
// §3): three FIFO queues of LockLink, exclusive/refcount bookkeeping,
// and the mask state from the last successful inodelk.
type Lock struct {
	mu sync.Mutex

	Gfid   [16]byte
	Domain string

	Owners  []*LockLink
	Waiting []*LockLink
	Frozen  []*LockLink

	Exclusive   uint32
	RefsOwners  uint32
	RefsPending uint32

	Acquired     bool
	Release      bool
	Query        bool
	GettingXattr bool

	Mask     ec.Mask
	GoodMask ec.Mask
	Healing  ec.Mask

	timer *timerHandle
}

// NewLock allocates an unacquired lock for (gfid, domain).
func NewLock(gfid [16]byte, domain string) *Lock {
	return &Lock{Gfid: gfid, Domain: domain}
}

// Mu exposes the lock's own mutex so a Manager can serialise queue
// mutation; callers must already hold the owning InodeCtx's mutex
// first, per the lock ordering in spec.md §5.
func (l *Lock) Mu() *sync.Mutex { return &l.mu }

// CompareGfid orders two gfids for the two-lock acquisition rule in
// spec.md §4.2 ("ordered by cmp(gfid_a, gfid_b)").
func CompareGfid(a, b [16]byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Empty reports whether the lock has no owners, waiters, or frozen
// fops and no pending refs — the condition under which unlock_lock
// destroys the Lock object entirely (spec.md §4.2 lifecycle).
func (l *Lock) Empty() bool {
	return len(l.Owners) == 0 && len(l.Waiting) == 0 && len(l.Frozen) == 0 && l.RefsPending == 0
}
