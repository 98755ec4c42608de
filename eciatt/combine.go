package eciatt

// Combine merges b into a following spec.md §4.3's iatt_combine rule.
// trusted reports whether the comparison is trustworthy: true iff the
// top-level fop holds an exclusive inode lock on the gfid, or the fop
// is lookup (spec.md open question #1, preserved as-is). When trusted,
// a mismatch on ino/gfid/rdev/uid/gid/mode/size aborts the combine
// (the caller should treat the two answers as belonging to separate
// groups); when untrusted, mismatches on uid/gid/mode/size are ignored
// (a's values are kept) rather than aborting.
//
// Ino, Gfid, and Rdev are always compared strictly regardless of
// trust: they identify *which* file this is, not its mutable state.
func Combine(a, b Iatt, trusted bool) (merged Iatt, ok bool) {
	if a.Ino != b.Ino || a.Gfid != b.Gfid || a.Rdev != b.Rdev {
		return a, false
	}

	if trusted {
		if a.UID != b.UID || a.GID != b.GID || a.Mode != b.Mode || a.Size != b.Size {
			return a, false
		}
	}

	merged = a
	merged.Blocks = a.Blocks + b.Blocks
	if b.Blksize > merged.Blksize {
		merged.Blksize = b.Blksize
	}
	merged.Atime = maxTime(a.Atime, b.Atime)
	merged.Mtime = maxTime(a.Mtime, b.Mtime)
	merged.Ctime = maxTime(a.Ctime, b.Ctime)
	if !trusted {
		// Untrusted size/uid/gid/mode disagreements are not errors;
		// keep a's values (the representative of the answer group
		// being built); nothing is logged.
		merged.UID, merged.GID, merged.Mode, merged.Size = a.UID, a.GID, a.Mode, a.Size
	} else {
		merged.Size = maxU64(a.Size, b.Size)
	}
	return merged, true
}

// Rebuild scales ia_blocks to reverse EC fragmentation after combining
// `answers` replies out of a K-fragment stripe (spec.md §4.3
// iatt_rebuild): blocks <- ceil(blocks*K/answers). ia_size for regular
// files must be overwritten by the caller from InodeCtx, never from
// the combined brick value; Rebuild does not touch Size.
func Rebuild(iatt Iatt, k, answers int) Iatt {
	if answers <= 0 {
		return iatt
	}
	num := iatt.Blocks * uint64(k)
	iatt.Blocks = (num + uint64(answers) - 1) / uint64(answers)
	return iatt
}
