// Package echeal implements the self-heal engine (spec.md §4.6): the
// four-stage inspect/metadata/entry/data heal run under a dedicated
// lock domain, plus the background admission control in pool.go.
package echeal

import (
	"context"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eccodec"
	"github.com/gluster-labs/ec-core/ecxattr"
)

// selfHealDomain is the dedicated inodelk domain heal acquires on
// every live brick, distinct from the per-fop "data"/"metadata"
// domains eclock.Lock manages (spec.md §4.6 "under its own inodelk on
// a dedicated self-heal domain").
const selfHealDomain = "self-heal"

// Result summarises one Heal run, for logging and tests.
type Result struct {
	Healthy bool
	Sources ec.Mask
	Sinks   ec.Mask
}

// Engine runs heals against a fixed brick set and codec.
type Engine struct {
	Bricks []ecbrick.Client
	Codec  eccodec.Codec
	Config ec.Config
	log    *zap.SugaredLogger

	// NonInternalXattrs lists the xattr keys metadata heal reconciles
	// (spec.md §4.6 step 2: "non-internal xattrs"). Enumerating a
	// brick's full xattr set is a posix-backend concern out of scope
	// for the Client interface (ecbrick's doc comment); callers supply
	// the keys their deployment actually uses.
	NonInternalXattrs []string
}

// NewEngine constructs a heal Engine.
func NewEngine(bricks []ecbrick.Client, codec eccodec.Codec, cfg ec.Config, log *zap.SugaredLogger) *Engine {
	return &Engine{Bricks: bricks, Codec: codec, Config: cfg, log: log}
}

// brickState is one brick's answer during Inspect.
type brickState struct {
	idx     int
	up      bool
	version [2]int64
	size    uint64
}

// Heal runs the full four-stage heal for gfid across mask (spec.md
// §4.6). isDir selects whether the entry-heal stage runs. partial
// restricts the run to the entry-name heal only (directories), per
// spec.md's "partial means only the entry-name heal is desired".
func (e *Engine) Heal(ctx context.Context, gfid, parent [16]byte, name string, mask ec.Mask, isDir, partial bool) (*Result, error) {
	locked, err := e.lockDomain(ctx, mask, gfid)
	if err != nil {
		return nil, errors.Wrap(ec.ErrLockFailed, "self-heal domain lock failed")
	}
	defer e.unlockDomain(ctx, locked, gfid)

	states := e.inspect(ctx, locked, gfid)
	healthy, sources, sinks := evaluate(states, e.Config.Fragments, len(locked.Indices()))
	res := &Result{Healthy: healthy, Sources: sources, Sinks: sinks}
	if healthy {
		return res, nil
	}

	if partial {
		if isDir {
			e.entryHeal(ctx, locked, gfid)
		}
		return res, nil
	}

	e.metadataHeal(ctx, gfid, sources, sinks)
	if isDir {
		e.entryHeal(ctx, locked, gfid)
	} else {
		e.dataHeal(ctx, gfid, sources, sinks)
	}
	return res, nil
}

// lockDomain acquires the self-heal inodelk on every brick in mask,
// aborting (and releasing whatever it already took) if any fails.
func (e *Engine) lockDomain(ctx context.Context, mask ec.Mask, gfid [16]byte) (ec.Mask, error) {
	var acquired ec.Mask
	for _, idx := range mask.Indices() {
		reply, err := e.Bricks[idx].Do(ctx, ecbrick.OpInodelk, &ecbrick.Request{
			Gfid: gfid, LockDomain: selfHealDomain, LockCmd: ecbrick.SetLKW, LockType: ecbrick.WriteLock,
		})
		if err == nil && reply.OpRet < 0 {
			err = reply.OpErrno
		}
		if err != nil {
			e.unlockDomain(ctx, acquired, gfid)
			return 0, err
		}
		acquired = acquired.Set(idx)
	}
	return acquired, nil
}

func (e *Engine) unlockDomain(ctx context.Context, mask ec.Mask, gfid [16]byte) {
	for _, idx := range mask.Indices() {
		_, err := e.Bricks[idx].Do(ctx, ecbrick.OpInodelk, &ecbrick.Request{
			Gfid: gfid, LockDomain: selfHealDomain, LockCmd: ecbrick.Unlock,
		})
		if err != nil && e.log != nil {
			e.log.Debugw("self-heal unlock failed", "brick", idx, "err", err)
		}
	}
}

// inspect implements spec.md §4.6 step 1: read VERSION/DIRTY/SIZE (via
// stat) from every brick in mask.
func (e *Engine) inspect(ctx context.Context, mask ec.Mask, gfid [16]byte) []brickState {
	states := make([]brickState, 0, mask.Popcount())
	for _, idx := range mask.Indices() {
		reply, err := e.Bricks[idx].Do(ctx, ecbrick.OpStat, &ecbrick.Request{Gfid: gfid})
		if err != nil || reply.OpRet < 0 {
			states = append(states, brickState{idx: idx, up: false})
			continue
		}
		states = append(states, brickState{
			idx: idx, up: true,
			version: reply.Version, size: reply.Size,
		})
	}
	return states
}

// evaluate groups brickStates by the (data_version, meta_version,
// size) key and picks the largest group as source of truth (spec.md
// §4.6 step 1). healthy holds iff that group's size >= k, every
// brick in mask answered up, and no brick falls outside that group
// (sinks is empty). ecbrick.Reply has no per-domain lock-count
// field (the posix-side lock table isn't modelled by the Client
// interface), so the "no contention observed" half of step 1 is
// enforced upstream by Heal's own self-heal domain lock instead of
// being re-derived here.
func evaluate(states []brickState, k, upExpected int) (healthy bool, sources, sinks ec.Mask) {
	type key struct {
		dv, mv int64
		size   uint64
	}
	groups := map[key]ec.Mask{}
	upCount := 0
	for _, s := range states {
		if !s.up {
			continue
		}
		upCount++
		kk := key{s.version[0], s.version[1], s.size}
		groups[kk] = groups[kk].Set(s.idx)
	}

	var bestMask ec.Mask
	for _, m := range groups {
		if m.Popcount() > bestMask.Popcount() {
			bestMask = m
		}
	}

	sources = bestMask
	var all ec.Mask
	for _, s := range states {
		all = all.Set(s.idx)
	}
	sinks = all.AndNot(sources)

	healthy = bestMask.Popcount() >= k && upCount == upExpected && sinks.Empty()
	return healthy, sources, sinks
}

// metadataHeal implements the xattr part of spec.md §4.6 step 2: it
// overwrites each sink's value of every key in e.NonInternalXattrs with
// the value read from a representative source. Mode, uid, gid and
// timestamps are not copied to sinks.
func (e *Engine) metadataHeal(ctx context.Context, gfid [16]byte, sources, sinks ec.Mask) {
	if sources.Empty() || sinks.Empty() {
		return
	}
	srcIdx := sources.First()

	for _, key := range e.NonInternalXattrs {
		srcReply, err := e.Bricks[srcIdx].Do(ctx, ecbrick.OpGetxattr, &ecbrick.Request{Gfid: gfid, XattrKey: key})
		if err != nil || srcReply.OpRet < 0 {
			continue
		}
		for _, idx := range sinks.Indices() {
			_, err := e.Bricks[idx].Do(ctx, ecbrick.OpSetxattr, &ecbrick.Request{
				Gfid: gfid, XattrKey: key, XattrValue: srcReply.Data,
			})
			if err != nil && e.log != nil {
				e.log.Debugw("metadata heal setxattr failed", "brick", idx, "key", key, "err", err)
			}
		}
	}
}

// entryHeal implements spec.md §4.6 step 3: reconcile directory
// entries across bricks, recreating missing ones on sinks, deleting
// names present on fewer than K bricks, and skipping names that
// resolve to more than one gfid.
func (e *Engine) entryHeal(ctx context.Context, mask ec.Mask, dirGfid [16]byte) {
	byName := map[string]map[[16]byte]ec.Mask{}

	for _, idx := range mask.Indices() {
		reply, err := e.Bricks[idx].Do(ctx, ecbrick.OpReaddirp, &ecbrick.Request{Gfid: dirGfid})
		if err != nil || reply.OpRet < 0 {
			continue
		}
		for _, ent := range reply.Entries {
			if byName[ent.Name] == nil {
				byName[ent.Name] = map[[16]byte]ec.Mask{}
			}
			byName[ent.Name][ent.Gfid] = byName[ent.Name][ent.Gfid].Set(idx)
		}
	}

	k := e.Config.Fragments
	for name, gfids := range byName {
		if len(gfids) > 1 {
			// Same name resolves to multiple gfids: unhealable, skip
			// (spec.md §4.6 step 3).
			if e.log != nil {
				e.log.Debugw("entry heal: name resolves to multiple gfids, skipping", "name", name)
			}
			continue
		}
		for gfid, present := range gfids {
			if present.Popcount() < k {
				for _, idx := range present.Indices() {
					_, _ = e.Bricks[idx].Do(ctx, ecbrick.OpUnlink, &ecbrick.Request{ParentGfid: dirGfid, Name: name})
				}
				continue
			}
			missing := mask.AndNot(present)
			if missing.Empty() {
				continue
			}
			e.recreateEntry(ctx, dirGfid, name, gfid, present, missing)
		}
	}
}

// recreateEntry creates name/gfid on every brick in missing, copying
// mode and, for regular files, seeding CONFIG/VERSION/SIZE the way
// create already does for a fresh file (spec.md §4.5, §4.6 step 3).
func (e *Engine) recreateEntry(ctx context.Context, parent [16]byte, name string, gfid [16]byte, present, missing ec.Mask) {
	srcIdx := present.First()
	srcReply, err := e.Bricks[srcIdx].Do(ctx, ecbrick.OpStat, &ecbrick.Request{Gfid: gfid})
	if err != nil || srcReply.OpRet < 0 {
		return
	}
	ia := srcReply.Iatt[0]

	xattrop := map[string][]int64{}
	var cfgKey string
	var cfgValue []byte
	if ia.Mode&syscall.S_IFMT == syscall.S_IFREG {
		xattrop["version"] = []int64{0, 0}
		xattrop["size"] = []int64{0}
		cfgKey, cfgValue = ecxattr.NameConfig, ecxattr.EncodeConfig(e.Config)
	}

	for _, idx := range missing.Indices() {
		req := &ecbrick.Request{
			ParentGfid: parent, Name: name, Gfid: gfid,
			Mode: ia.Mode, UID: ia.UID, GID: ia.GID,
			XattropDict: xattrop,
			XattrKey:    cfgKey, XattrValue: cfgValue,
		}
		_, err := e.Bricks[idx].Do(ctx, ecbrick.OpCreate, req)
		if err != nil && e.log != nil {
			e.log.Debugw("entry heal recreate failed", "brick", idx, "name", name, "err", err)
		}
	}
}

// dataHeal implements spec.md §4.6 step 4: truncate sinks, then copy
// stripe-aligned chunks from sources (decode) to sinks (encode).
func (e *Engine) dataHeal(ctx context.Context, gfid [16]byte, sources, sinks ec.Mask) {
	if sources.Empty() || sinks.Empty() {
		return
	}
	for _, idx := range sinks.Indices() {
		_, _ = e.Bricks[idx].Do(ctx, ecbrick.OpTruncate, &ecbrick.Request{Gfid: gfid, Size: 0})
	}

	srcIdx := sources.First()
	srcReply, err := e.Bricks[srcIdx].Do(ctx, ecbrick.OpStat, &ecbrick.Request{Gfid: gfid})
	if err != nil || srcReply.OpRet < 0 {
		return
	}
	fragSize := e.Codec.FragmentSize()
	totalFrags := (int64(srcReply.Size) + fragSize - 1) / fragSize

	sourceIdxList := sources.Indices() // already ascending (ec.Mask.Indices)
	k := e.Codec.K()

	for off := int64(0); off < totalFrags*fragSize; off += fragSize {
		present := make([][]byte, e.Codec.N())
		got := 0
		for _, idx := range sourceIdxList {
			if got >= k {
				break
			}
			reply, err := e.Bricks[idx].Do(ctx, ecbrick.OpReadv, &ecbrick.Request{Gfid: gfid, Offset: off, Size: fragSize})
			if err != nil || reply.OpRet < 0 {
				continue
			}
			present[idx] = reply.Data
			got++
		}
		if got < k {
			if e.log != nil {
				e.log.Debugw("data heal: not enough source fragments for chunk", "offset", off)
			}
			return
		}

		decoded, err := e.Codec.Decode(present)
		if err != nil {
			if e.log != nil {
				e.log.Debugw("data heal decode failed", "offset", off, "err", err)
			}
			return
		}
		encoded, err := e.Codec.Encode(decoded)
		if err != nil {
			if e.log != nil {
				e.log.Debugw("data heal encode failed", "offset", off, "err", err)
			}
			return
		}
		for _, idx := range sinks.Indices() {
			_, err := e.Bricks[idx].Do(ctx, ecbrick.OpWritev, &ecbrick.Request{Gfid: gfid, Offset: off, Data: encoded[idx]})
			if err != nil && e.log != nil {
				e.log.Debugw("data heal write failed", "brick", idx, "offset", off, "err", err)
			}
		}
	}

	deltaVersion := srcReply.Version[ecxattr.Data] // representative source version for participants
	for _, idx := range sinks.Indices() {
		dirty := [2]int64{-srcReply.Dirty[0], -srcReply.Dirty[1]}
		_, _ = e.Bricks[idx].Do(ctx, ecbrick.OpXattrop, &ecbrick.Request{
			Gfid: gfid,
			XattropDict: map[string][]int64{
				"version": {deltaVersion, 0},
				"size":    {int64(srcReply.Size)},
				"dirty":   {dirty[0], dirty[1]},
			},
		})
	}
}
