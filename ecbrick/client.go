// Package ecbrick pins the interface of the per-brick client the EC
// core dispatches onto (spec.md §1, §6): "the lower per-brick client
// that actually performs a remote fop" is explicitly out of scope, so
// this package only declares the operation set and reply shape a real
// implementation must provide, plus an in-memory fake used by tests.
package ecbrick

import (
	"context"
	"syscall"

	"github.com/gluster-labs/ec-core/eciatt"
)

// Op identifies one of the brick operations enumerated in spec.md §6.
// Following the re-expression called for in spec.md §9 ("a fop is a
// value with an id and a discriminated-union of per-fop payloads"),
// every op is dispatched through the single Client.Do entry point
// keyed by Op, with the Request carrying whichever fields that op
// uses.
type Op int

const (
	OpLookup Op = iota
	OpStat
	OpFstat
	OpAccess
	OpReadlink
	OpOpen
	OpOpendir
	OpReadv
	OpReaddir
	OpReaddirp
	OpSeek
	OpStatfs
	OpFlush
	OpFsync
	OpFsyncdir
	OpGetxattr
	OpFgetxattr
	OpSetxattr
	OpFsetxattr
	OpRemovexattr
	OpFremovexattr
	OpCreate
	OpLink
	OpSymlink
	OpMknod
	OpMkdir
	OpRename
	OpUnlink
	OpRmdir
	OpTruncate
	OpFtruncate
	OpWritev
	OpFallocate
	OpDiscard
	OpZerofill
	OpXattrop
	OpFxattrop
	OpInodelk
	OpFinodelk
	OpEntrylk
	OpFentrylk
	OpLk
	OpIPC
)

// XattropFlag selects the xattrop primitive's operation (spec.md §6.
// Only ADD_ARRAY64 is used by this core.
type XattropFlag int

const (
	XattropAddArray64 XattropFlag = iota
)

// LockCmd mirrors the POSIX-style lock commands used by inodelk/
// entrylk/lk (spec.md §6): F_SETLK, F_SETLKW, F_UNLCK semantics.
type LockCmd int

const (
	SetLK LockCmd = iota
	SetLKW
	Unlock
)

// LockType is F_RDLCK/F_WRLCK for inodelk/entrylk.
type LockType int

const (
	ReadLock LockType = iota
	WriteLock
)

// Dict is the xdata/xattr dictionary type threaded through almost
// every call; values are opaque blobs except where a specific key's
// semantics are defined elsewhere (ecxattr, §4.3 combine rules).
type Dict map[string]interface{}

// Request carries the arguments for one Op. Only the fields relevant
// to the chosen Op are populated; this is the "discriminated union of
// per-fop payloads" from spec.md §9, expressed as a flat struct rather
// than pointer-threaded C unions since every field is cheap and the
// struct is short-lived (one per brick call).
type Request struct {
	Gfid       [16]byte
	ParentGfid [16]byte
	Name       string
	NewParent  [16]byte
	NewName    string
	FD         uint64
	Flags      int
	Mode       uint32
	UID, GID   uint32
	Offset     int64
	Size       int64
	Data       []byte
	LinkTarget string
	Dev        uint64

	XattrKey    string
	XattrValue  []byte
	XattropOp   XattropFlag
	XattropDict map[string][]int64

	LockDomain string
	LockCmd    LockCmd
	LockType   LockType
	LockOffset int64
	LockLen    int64

	Xdata Dict
}

// Reply is the per-brick answer to one Request. OpRet/OpErrno mirror
// the classic (op_ret, op_errno) pair; Iatt holds up to five inode
// attribute structures since some fops (rename) return that many
// (spec.md §4.5).
type Reply struct {
	OpRet   int64
	OpErrno syscall.Errno

	Iatt    [5]eciatt.Iatt
	IattCnt int

	Version [2]int64
	Dirty   [2]int64
	Size    uint64
	Config  []byte

	Data    []byte
	Entries []DirEntry

	XattropResult map[string][]int64

	Blocks, Bfree, Bavail uint64
	Files, Ffree          uint64

	Xdata Dict
}

// DirEntry is one entry returned by readdir/readdirp.
type DirEntry struct {
	Name string
	Gfid [16]byte
	Iatt eciatt.Iatt
	Off  int64
}

// Client is the per-brick RPC surface the fop engine dispatches onto.
// Index identifies which of the N configured bricks this Client talks
// to; engines keep one Client per brick.
type Client interface {
	Index() int
	Do(ctx context.Context, op Op, req *Request) (*Reply, error)
}
