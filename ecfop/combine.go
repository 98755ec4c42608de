package ecfop

import "github.com/gluster-labs/ec-core/eciatt"

// CombineSimple groups replies purely by (op_ret, op_errno) equality,
// the rule spec.md §4.3 gives for fops with no attribute payload to
// reconcile (access, flush, unlink, rmdir, and similar).
func CombineSimple(a, b *Cbk) bool {
	return a.OpRet == b.OpRet && a.OpErrno == b.OpErrno
}

// CombineIatt returns a CombineFunc that additionally requires the
// first returned Iatt to combine successfully (spec.md §4.3's
// trusted/untrusted comparison via eciatt.Combine), folding the
// winning merged Iatt back into the group's representative reply so
// later members keep accumulating against the running combination
// rather than just the first two.
func CombineIatt(trusted bool) CombineFunc {
	return func(a, b *Cbk) bool {
		if a.OpRet != b.OpRet || a.OpErrno != b.OpErrno {
			return false
		}
		if a.OpRet < 0 {
			return true // both errored the same way; no iatt to reconcile
		}
		if a.Reply == nil || b.Reply == nil {
			return false
		}
		merged, ok := eciatt.Combine(a.Reply.Iatt[0], b.Reply.Iatt[0], trusted)
		if !ok {
			return false
		}
		a.Reply.Iatt[0] = merged
		return true
	}
}

// CombineStatfs implements spec.md §4.3's statfs-specific combine
// rule: "quota size → max of a 3-tuple then scale size by K". Every
// reply groups together regardless of its blocks/bfree/bavail values;
// the representative is folded forward to the running max of each
// field so the final group holds the maximum figure any brick
// reported, matching how a quota-limited volume's accounting brick(s)
// can legitimately disagree with unlimited ones.
func CombineStatfs(a, b *Cbk) bool {
	if a.OpRet != b.OpRet || a.OpErrno != b.OpErrno {
		return false
	}
	if a.OpRet < 0 || a.Reply == nil || b.Reply == nil {
		return true
	}
	a.Reply.Blocks = maxU64(a.Reply.Blocks, b.Reply.Blocks)
	a.Reply.Bfree = maxU64(a.Reply.Bfree, b.Reply.Bfree)
	a.Reply.Bavail = maxU64(a.Reply.Bavail, b.Reply.Bavail)
	a.Reply.Files = maxU64(a.Reply.Files, b.Reply.Files)
	a.Reply.Ffree = maxU64(a.Reply.Ffree, b.Reply.Ffree)
	return true
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// CombineRename is CombineIatt generalised to rename's up-to-5 iatts
// (spec.md §4.5): every populated slot, in order, must combine.
func CombineRename(trusted bool) CombineFunc {
	return func(a, b *Cbk) bool {
		if a.OpRet != b.OpRet || a.OpErrno != b.OpErrno {
			return false
		}
		if a.OpRet < 0 {
			return true
		}
		if a.Reply == nil || b.Reply == nil || a.Reply.IattCnt != b.Reply.IattCnt {
			return false
		}
		for i := 0; i < a.Reply.IattCnt; i++ {
			merged, ok := eciatt.Combine(a.Reply.Iatt[i], b.Reply.Iatt[i], trusted)
			if !ok {
				return false
			}
			a.Reply.Iatt[i] = merged
		}
		return true
	}
}
