package ecfop

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
)

// CombineFunc reports whether two replies are equivalent for grouping
// purposes (spec.md §4.3): e.g. same op_ret/op_errno and, for fops that
// carry an iatt, an untrusted-compare match. Handlers in package ops
// supply the fop-specific rule; ecfop only runs the bucketing.
type CombineFunc func(a, b *Cbk) bool

// RequestFunc builds the per-brick Request for brick idx. Handlers
// close over whatever arguments the operation needs.
type RequestFunc func(idx int) *ecbrick.Request

// resolveMinimum turns a Minimum policy into a concrete reply count,
// degrading MinAll to k when fewer than k bricks are even being asked
// (spec.md §4.1: "minimum resolves to popcount(mask) unless that is
// less than fragments, in which case it degrades to fragments").
func resolveMinimum(m Minimum, targeted, k int) int {
	switch m {
	case MinOne:
		return 1
	case MinK:
		return k
	default: // MinAll
		if targeted < k {
			return k
		}
		return targeted
	}
}

// dispatch fans Request out to every brick set in targets, waits for
// at least the resolved minimum number of replies (or all of them, if
// an error makes reaching minimum impossible), and groups replies with
// combine. It never fails eagerly on a single brick error: spec.md
// §4.1 requires collecting every reply before judging quorum, since a
// later reply may still let majority combine succeed.
func dispatch(ctx context.Context, bricks []ecbrick.Client, targets ec.Mask, min Minimum, k int, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	indices := targets.Indices()
	f := &Fop{
		Mask:      targets,
		Minimum:   min,
		Expected:  len(indices),
		Remaining: targets,
	}

	var (
		mu sync.Mutex
		wg errgroup.Group
	)

	for _, idx := range indices {
		idx := idx
		brick := bricks[idx]
		wg.Go(func() error {
			req := reqFn(idx)
			reply, err := brick.Do(ctx, op, req)

			mu.Lock()
			defer mu.Unlock()

			cbk := &Cbk{Idx: idx, Mask: ec.NewMask(0).Set(idx), Count: 1}
			if err != nil {
				cbk.OpRet = -1
				cbk.OpErrno = ec.Errno(err)
			} else {
				cbk.OpRet = reply.OpRet
				cbk.OpErrno = reply.OpErrno
				cbk.Reply = reply
			}
			f.Received = f.Received.Or(cbk.Mask)
			f.Remaining = f.Remaining.AndNot(cbk.Mask)
			mergeCbk(f, cbk, combine)
			return nil
		})
	}
	_ = wg.Wait() // errors are carried in Cbk.OpErrno, never returned by brick goroutines

	required := resolveMinimum(min, len(indices), k)
	pickAnswer(f, required)
	if f.Answer == nil {
		if len(indices) < required {
			return f, errors.Wrap(ec.ErrInsufficientBricks, "fewer bricks targeted than the required minimum")
		}
		return f, errors.Wrap(ec.ErrAnswerDivergence, "no group reached the required minimum")
	}
	return f, nil
}

// mergeCbk inserts cbk into f's answer groups (spec.md §4.3 "answers
// combine into groups of mutually-equal replies; the largest group
// wins"). Caller must hold the mutex serialising Fop mutation.
func mergeCbk(f *Fop, cbk *Cbk, combine CombineFunc) {
	for _, existing := range f.cbkList {
		if combine(existing, cbk) {
			existing.Count++
			existing.Mask = existing.Mask.Or(cbk.Mask)
			if cbk.Reply != nil && existing.Reply == nil {
				existing.Reply = cbk.Reply
			}
			return
		}
	}
	f.cbkList = append(f.cbkList, cbk)
}

// pickAnswer selects the largest group meeting the required count as
// f.Answer, and records f.Good as the bricks in that group (spec.md
// §4.3 "good_mask becomes the winning group's mask").
func pickAnswer(f *Fop, required int) {
	// The winning group need not be a success: a quorum of bricks
	// agreeing on the same error (e.g. unanimous ENOENT) is itself a
	// valid answer propagated to the caller, per spec.md §4.1. When no
	// group reaches the minimum, f.Answer stays nil and dispatch reports
	// answer divergence (or insufficient bricks, if fewer bricks were
	// targeted than the minimum).
	var best *Cbk
	for _, c := range f.cbkList {
		if best == nil || c.Count > best.Count {
			best = c
		}
	}
	if best == nil || best.Count < required {
		return
	}
	f.Answer = best
	f.Good = best.Mask
}

// DispatchAll sends op to every up, non-healing brick in mask with
// minimum ALL (spec.md §4.1 "most fops dispatch to every configured
// brick and require every one, or at least fragments, to agree").
func DispatchAll(ctx context.Context, bricks []ecbrick.Client, mask ec.Mask, k int, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	return dispatch(ctx, bricks, mask, MinAll, k, op, reqFn, combine)
}

// DispatchMin sends op to exactly k bricks drawn from mask, starting
// at first and wrapping (spec.md §4.1 "read dispatches to exactly
// fragments bricks, chosen starting from a rotating first index").
func DispatchMin(ctx context.Context, bricks []ecbrick.Client, mask ec.Mask, first, k int, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	targets := pickN(mask, first, k)
	return dispatch(ctx, bricks, targets, MinK, k, op, reqFn, combine)
}

// DispatchOne sends op to a single brick, the first one set in mask at
// or after first (spec.md §4.1 "single-brick ops such as readlink pick
// one up brick and retry another on failure").
func DispatchOne(ctx context.Context, bricks []ecbrick.Client, mask ec.Mask, first int, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	targets := pickN(mask, first, 1)
	return dispatch(ctx, bricks, targets, MinOne, 1, op, reqFn, combine)
}

// DispatchInc sends op to an incrementally growing brick set (spec.md
// §4.1 "dispatch_inc — incrementally, one more brick per retry"):
// starting at k bricks from first, retrying with one additional brick
// each time quorum isn't reached, until either a group meets minimum
// or every brick in mask has been tried.
func DispatchInc(ctx context.Context, bricks []ecbrick.Client, mask ec.Mask, first, k int, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	total := mask.Popcount()
	if total < k {
		total = k
	}
	var f *Fop
	var err error
	for n := k; n <= total; n++ {
		targets := pickN(mask, first, n)
		f, err = dispatch(ctx, bricks, targets, MinAll, k, op, reqFn, combine)
		if err == nil {
			return f, nil
		}
	}
	return f, err
}

// RetryOne re-dispatches a failed DispatchOne to the next up brick
// after first that was not already tried (spec.md §4.1's one-shot
// retry for single-brick reads). tried must include every brick index
// already attempted.
func RetryOne(ctx context.Context, bricks []ecbrick.Client, mask ec.Mask, tried ec.Mask, op ecbrick.Op, reqFn RequestFunc, combine CombineFunc) (*Fop, error) {
	remaining := mask.AndNot(tried)
	if remaining.Empty() {
		return nil, errors.Wrap(ec.ErrInsufficientBricks, "no untried brick left for retry")
	}
	first := remaining.First()
	return DispatchOne(ctx, bricks, remaining, first, op, reqFn, combine)
}

// pickN returns a mask of up to n bits set in mask, walking from first
// and wrapping around MaxBricks, preserving the rotating-first-index
// behaviour spec.md §4.1 calls for without requiring a contiguous
// brick id range.
func pickN(mask ec.Mask, first, n int) ec.Mask {
	var out ec.Mask
	if n <= 0 {
		return out
	}
	for i := 0; i < ec.MaxBricks && out.Popcount() < n; i++ {
		idx := (first + i) % ec.MaxBricks
		if mask.Has(idx) {
			out = out.Set(idx)
		}
	}
	return out
}
