package ecbrick

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/gluster-labs/ec-core/eciatt"
)

// fakeFile is the in-memory state of one object on one fake brick.
type fakeFile struct {
	gfid    [16]byte
	mode    uint32
	uid     uint32
	gid     uint32
	nlink   uint32
	data    []byte
	link    string
	xattrs  map[string][]byte
	xattrop map[string][]int64
	atime   time.Time
	mtime   time.Time
	ctime   time.Time
	isDir   bool
}

func newFakeFile(mode uint32) *fakeFile {
	now := time.Now()
	return &fakeFile{
		mode:    mode,
		nlink:   1,
		xattrs:  map[string][]byte{},
		xattrop: map[string][]int64{},
		atime:   now,
		mtime:   now,
		ctime:   now,
	}
}

func (f *fakeFile) iatt() eciatt.Iatt {
	return eciatt.Iatt{
		Gfid:    f.gfid,
		Mode:    f.mode,
		UID:     f.uid,
		GID:     f.gid,
		Nlink:   f.nlink,
		Size:    uint64(len(f.data)),
		Blocks:  uint64((len(f.data) + 511) / 512),
		Blksize: 4096,
		Atime:   f.atime,
		Mtime:   f.mtime,
		Ctime:   f.ctime,
	}
}

type lockKey struct {
	gfid   [16]byte
	domain string
}

// FakeBrick is an in-memory brick used by tests across ecfop, eclock,
// and echeal: it is deliberately simple (single mutex, no real network
// latency) so tests can control interleaving precisely, the way
// hanwen-go-fuse's loopback.go stands in for a real backend.
type FakeBrick struct {
	idx int

	mu       sync.Mutex
	files    map[[16]byte]*fakeFile
	dirs     map[[16]byte]map[string][16]byte
	locks    map[lockKey]bool
	Down     bool
	FailNext map[Op]error

	// Blocks/Bfree/Bavail/Files/Ffree are this brick's fixed statvfs
	// figures, reported verbatim by doStatfs. Tests set these
	// directly to exercise ops.Statfs's per-brick combining.
	Blocks, Bfree, Bavail uint64
	Files, Ffree          uint64
}

// NewFakeBrick creates an empty fake brick at the given index, with a
// root directory gfid of all zero bytes.
func NewFakeBrick(idx int) *FakeBrick {
	b := &FakeBrick{
		idx:      idx,
		files:    map[[16]byte]*fakeFile{},
		dirs:     map[[16]byte]map[string][16]byte{},
		locks:    map[lockKey]bool{},
		FailNext: map[Op]error{},
	}
	root := newFakeFile(syscall.S_IFDIR | 0755)
	b.files[root.gfid] = root
	b.dirs[root.gfid] = map[string][16]byte{}
	return b
}

func (b *FakeBrick) Index() int { return b.idx }

// Do implements Client.
func (b *FakeBrick) Do(ctx context.Context, op Op, req *Request) (*Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Down {
		return nil, syscall.ENOTCONN
	}
	if err, ok := b.FailNext[op]; ok {
		delete(b.FailNext, op)
		return nil, err
	}

	switch op {
	case OpLookup, OpStat, OpFstat:
		return b.doStat(req)
	case OpAccess:
		if _, ok := b.files[req.Gfid]; !ok {
			return errReply(syscall.ENOENT), nil
		}
		return okReply(), nil
	case OpReadlink:
		f, ok := b.files[req.Gfid]
		if !ok {
			return errReply(syscall.ENOENT), nil
		}
		r := okReply()
		r.Data = []byte(f.link)
		return r, nil
	case OpOpen, OpOpendir, OpFlush, OpFsync, OpFsyncdir:
		if _, ok := b.files[req.Gfid]; !ok {
			return errReply(syscall.ENOENT), nil
		}
		return okReply(), nil
	case OpReadv:
		return b.doReadv(req)
	case OpWritev:
		return b.doWritev(req)
	case OpReaddir, OpReaddirp:
		return b.doReaddir(req)
	case OpGetxattr, OpFgetxattr:
		f, ok := b.files[req.Gfid]
		if !ok {
			return errReply(syscall.ENOENT), nil
		}
		r := okReply()
		r.Data = append([]byte(nil), f.xattrs[req.XattrKey]...)
		return r, nil
	case OpSetxattr, OpFsetxattr:
		f, ok := b.files[req.Gfid]
		if !ok {
			return errReply(syscall.ENOENT), nil
		}
		f.xattrs[req.XattrKey] = append([]byte(nil), req.XattrValue...)
		return okReply(), nil
	case OpRemovexattr, OpFremovexattr:
		f, ok := b.files[req.Gfid]
		if !ok {
			return errReply(syscall.ENOENT), nil
		}
		delete(f.xattrs, req.XattrKey)
		return okReply(), nil
	case OpCreate, OpMknod:
		return b.doCreate(req)
	case OpMkdir:
		return b.doMkdir(req)
	case OpSymlink:
		return b.doSymlink(req)
	case OpLink:
		return b.doLink(req)
	case OpUnlink, OpRmdir:
		return b.doUnlink(req)
	case OpRename:
		return b.doRename(req)
	case OpTruncate, OpFtruncate:
		return b.doTruncate(req)
	case OpFallocate:
		return b.doTruncate(req)
	case OpDiscard:
		return b.doDiscard(req)
	case OpZerofill:
		return b.doZerofill(req)
	case OpXattrop, OpFxattrop:
		return b.doXattrop(req)
	case OpInodelk, OpFinodelk:
		return b.doInodelk(req)
	case OpEntrylk, OpFentrylk:
		return okReply(), nil
	case OpLk:
		return okReply(), nil
	case OpSeek:
		return b.doStat(req)
	case OpStatfs:
		return b.doStatfs(req)
	case OpIPC:
		return okReply(), nil
	}
	return nil, syscall.ENOSYS
}

func okReply() *Reply  { return &Reply{OpRet: 0} }
func errReply(errno syscall.Errno) *Reply {
	return &Reply{OpRet: -1, OpErrno: errno}
}

func (b *FakeBrick) doStatfs(req *Request) (*Reply, error) {
	r := okReply()
	r.Blocks, r.Bfree, r.Bavail = b.Blocks, b.Bfree, b.Bavail
	r.Files, r.Ffree = b.Files, b.Ffree
	return r, nil
}

func (b *FakeBrick) doStat(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	r := okReply()
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	v, _ := f.xattrop["version"]
	if len(v) == 2 {
		r.Version = [2]int64{v[0], v[1]}
	}
	d, _ := f.xattrop["dirty"]
	if len(d) == 2 {
		r.Dirty = [2]int64{d[0], d[1]}
	}
	r.Size = uint64(len(f.data))
	if cfg, ok := f.xattrs["trusted.ec.config"]; ok {
		r.Config = append([]byte(nil), cfg...)
	}
	return r, nil
}

func (b *FakeBrick) doReadv(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	end := req.Offset + req.Size
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	if req.Offset > end {
		req.Offset = end
	}
	r := okReply()
	r.Data = append([]byte(nil), f.data[req.Offset:end]...)
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	return r, nil
}

func (b *FakeBrick) doWritev(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	end := req.Offset + int64(len(req.Data))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[req.Offset:end], req.Data)
	f.mtime = time.Now()
	r := okReply()
	r.OpRet = int64(len(req.Data))
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	return r, nil
}

func (b *FakeBrick) doTruncate(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	size := req.Size
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	} else if size > int64(len(f.data)) {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	r := okReply()
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	return r, nil
}

func (b *FakeBrick) doDiscard(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	end := req.Offset + req.Size
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	for i := req.Offset; i < end; i++ {
		f.data[i] = 0
	}
	return okReply(), nil
}

func (b *FakeBrick) doZerofill(req *Request) (*Reply, error) {
	return b.doDiscard(req)
}

func (b *FakeBrick) doCreate(req *Request) (*Reply, error) {
	f := newFakeFile(req.Mode)
	f.gfid = req.Gfid
	f.uid, f.gid = req.UID, req.GID
	for k, v := range req.XattropDict {
		f.xattrs[k] = encodeI64Array(v)
	}
	if req.XattrKey != "" {
		f.xattrs[req.XattrKey] = append([]byte(nil), req.XattrValue...)
	}
	b.files[f.gfid] = f
	if f.mode&syscall.S_IFDIR != 0 {
		b.dirs[f.gfid] = map[string][16]byte{}
	}
	dir, ok := b.dirs[req.ParentGfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	dir[req.Name] = req.Gfid
	r := okReply()
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	return r, nil
}

func (b *FakeBrick) doMkdir(req *Request) (*Reply, error) {
	req.Mode |= syscall.S_IFDIR
	return b.doCreate(req)
}

func (b *FakeBrick) doSymlink(req *Request) (*Reply, error) {
	r, err := b.doCreate(req)
	if err == nil && r.OpRet == 0 {
		b.files[req.Gfid].link = req.LinkTarget
	}
	return r, err
}

func (b *FakeBrick) doLink(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	dir, ok := b.dirs[req.ParentGfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	dir[req.Name] = req.Gfid
	f.nlink++
	r := okReply()
	r.Iatt[0] = f.iatt()
	r.IattCnt = 1
	return r, nil
}

func (b *FakeBrick) doUnlink(req *Request) (*Reply, error) {
	dir, ok := b.dirs[req.ParentGfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	gfid, ok := dir[req.Name]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	delete(dir, req.Name)
	if f, ok := b.files[gfid]; ok {
		f.nlink--
		if f.nlink == 0 {
			delete(b.files, gfid)
			delete(b.dirs, gfid)
		}
	}
	return okReply(), nil
}

func (b *FakeBrick) doRename(req *Request) (*Reply, error) {
	dir, ok := b.dirs[req.ParentGfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	gfid, ok := dir[req.Name]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	newDir, ok := b.dirs[req.NewParent]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	delete(dir, req.Name)
	newDir[req.NewName] = gfid
	r := okReply()
	r.IattCnt = 5
	if f, ok := b.files[gfid]; ok {
		r.Iatt[0] = f.iatt()
	}
	return r, nil
}

func (b *FakeBrick) doReaddir(req *Request) (*Reply, error) {
	dir, ok := b.dirs[req.Gfid]
	if !ok {
		return errReply(syscall.ENOTDIR), nil
	}
	r := okReply()
	for name, gfid := range dir {
		entry := DirEntry{Name: name, Gfid: gfid}
		if f, ok := b.files[gfid]; ok {
			entry.Iatt = f.iatt()
		}
		r.Entries = append(r.Entries, entry)
	}
	return r, nil
}

func (b *FakeBrick) doXattrop(req *Request) (*Reply, error) {
	f, ok := b.files[req.Gfid]
	if !ok {
		return errReply(syscall.ENOENT), nil
	}
	r := okReply()
	r.XattropResult = map[string][]int64{}
	for key, delta := range req.XattropDict {
		cur := f.xattrop[key]
		if cur == nil {
			cur = make([]int64, len(delta))
		}
		next := make([]int64, len(delta))
		for i := range delta {
			var c int64
			if i < len(cur) {
				c = cur[i]
			}
			next[i] = c + delta[i]
		}
		f.xattrop[key] = next
		r.XattropResult[key] = next
	}
	if v, ok := f.xattrop["version"]; ok && len(v) == 2 {
		r.Version = [2]int64{v[0], v[1]}
	}
	if d, ok := f.xattrop["dirty"]; ok && len(d) == 2 {
		r.Dirty = [2]int64{d[0], d[1]}
	}
	if s, ok := f.xattrop["size"]; ok && len(s) == 1 {
		r.Size = uint64(s[0])
	}
	return r, nil
}

func (b *FakeBrick) doInodelk(req *Request) (*Reply, error) {
	key := lockKey{gfid: req.Gfid, domain: req.LockDomain}
	if req.LockCmd == Unlock {
		delete(b.locks, key)
		return okReply(), nil
	}
	if b.locks[key] {
		return errReply(syscall.EAGAIN), nil
	}
	b.locks[key] = true
	return okReply(), nil
}

func encodeI64Array(v []int64) []byte {
	buf := make([]byte, 0, len(v)*8)
	for _, x := range v {
		b := make([]byte, 8)
		u := uint64(x)
		for i := 7; i >= 0; i-- {
			b[i] = byte(u)
			u >>= 8
		}
		buf = append(buf, b...)
	}
	return buf
}
