// Package ecfop implements the fop dispatch engine (spec.md §4.1):
// the per-operation state machine, answer grouping, quorum evaluation,
// and retry/degrade logic shared by every handler in package ops.
package ecfop

import (
	"sync"
	"syscall"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eclock"
)

// Minimum is the quorum a handler requests at dispatch (spec.md §4.1).
type Minimum int

const (
	// MinAll resolves to popcount(mask) unless that is less than K,
	// in which case it degrades to K.
	MinAll Minimum = iota
	// MinK is always exactly K.
	MinK
	// MinOne is a single reply.
	MinOne
)

// State names the fop state machine's states (spec.md §4.1). Negated
// states are represented by a non-nil Fop.Error rather than a distinct
// negative constant, since Go has no unary-minus-on-enum idiom; the
// driver in state.go still runs the same post-processing tail.
type State int

const (
	StateInit State = iota
	StateLock
	StateDispatch
	StatePrepareAnswer
	StateReport
	StateLockReuse
	StateUnlock
	StateEnd
)

// Cbk is the per-brick reply (spec.md §3): idx/mask identify which
// brick answered, count is 1 until merged with an equal-comparing
// reply from another brick, and Reply carries the actual payload.
type Cbk struct {
	Idx     int
	Mask    ec.Mask
	Count   int
	OpRet   int64
	OpErrno syscall.Errno
	Reply   *ecbrick.Reply
}

// Fop is one in-flight operation (spec.md §3). A Fop's lifetime spans
// from creation by a handler to the last reference dropping; unlike
// the C source's pointer-threaded closures, a Fop here is a plain
// value referenced by the goroutine(s) dispatching its children, with
// no reference cycles possible (spec.md §9 design note).
type Fop struct {
	ID      uint64
	Xlator  string
	UID     uint32
	GID     uint32
	Parent  *Fop
	Name    string // operation name, e.g. "writev"; used for logging/metrics
	Internal bool  // excluded from user-facing stats (spec.md open question #3)

	mu sync.Mutex

	Mask      ec.Mask
	Minimum   Minimum
	Expected  int
	Remaining ec.Mask
	Received  ec.Mask
	Good      ec.Mask
	Healing   ec.Mask

	winds   int
	done    chan struct{}
	cbkList []*Cbk
	Answer  *Cbk
	Error   error

	First      int
	FirstLock  int
	State      State
	Committed  bool // whether this fop has already written data/metadata (for error upgrade, spec.md §7)
	Link1      *eclock.LockLink
	Link2      *eclock.LockLink
}

// NewFop allocates a Fop ready for dispatch.
func NewFop(id uint64, xlator, name string, uid, gid uint32) *Fop {
	return &Fop{ID: id, Xlator: xlator, Name: name, UID: uid, GID: gid, done: make(chan struct{})}
}

// SetError records the first non-zero error seen by this fop (spec.md
// §7 propagation: "takes the first non-zero error"). Upgrades to EIO
// when the fop has already committed a write, per the same section.
func (f *Fop) SetError(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Error != nil {
		return
	}
	f.Error = ec.UpgradeWriteError(f.Committed, err)
}
