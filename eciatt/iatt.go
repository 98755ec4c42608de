// Package eciatt implements the inode-attributes structure shared by
// every fop reply and the §4.3 combining/rebuild rules that turn N
// per-brick iatts into the single coherent one the upper layer sees.
package eciatt

import "time"

// Iatt mirrors the inode-attributes structure named in spec.md's
// GLOSSARY: type, mode, uid, gid, size, atime, mtime, ctime, blocks,
// blksize, inode number, rdev, gfid.
type Iatt struct {
	Ino     uint64
	Gfid    [16]byte
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    uint64
	Blksize uint32
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// maxTime returns whichever of a, b is later; used for atime/mtime/
// ctime reconciliation in every Combine, trusted or not (spec.md §4.3).
func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
