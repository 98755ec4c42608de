package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eciatt"
	"github.com/gluster-labs/ec-core/eclock"
	"github.com/gluster-labs/ec-core/ecfop"
	"github.com/gluster-labs/ec-core/ecxattr"
)

// LookupResult is what Lookup hands back to the caller.
type LookupResult struct {
	Iatt eciatt.Iatt
}

// Lookup resolves gfid against every configured brick, trusting the
// combined iatt unconditionally (spec.md open question #1: "lookup
// always runs trusted, since no lock is held to make an untrusted
// compare meaningful anyway"). It also discovers CONFIG/VERSION/SIZE
// the first time an inode is referenced, the way the teacher's
// loopback FS fills in an Attr on first Lookup.
func (v *Volume) Lookup(ctx context.Context, gfid [16]byte) (*LookupResult, error) {
	ictx := v.inodeCtx(gfid)
	mask := v.liveMask(ictx, false)

	f := v.run(ctx, "lookup", 0, 0, mask, &genericHandler{
		dispatch: func(ctx context.Context, mask ec.Mask) (*ecfop.Fop, error) {
			return ecfop.DispatchAll(ctx, v.Bricks, mask, v.Config.Fragments, ecbrick.OpLookup, func(idx int) *ecbrick.Request {
				return &ecbrick.Request{Gfid: gfid}
			}, ecfop.CombineIatt(true))
		},
		prepareAnswer: func(f *ecfop.Fop) error {
			return v.rebuildLookup(ictx, f)
		},
	})
	if err := fopError(f); err != nil {
		return nil, err
	}

	ia := answerIatt(f, 0)
	ictx.Mu().Lock()
	ia.Size = ictx.CurrentSize()
	ictx.Mu().Unlock()
	return &LookupResult{Iatt: ia}, nil
}

// rebuildLookup folds the winning answer's VERSION/SIZE/CONFIG into
// ictx (spec.md §4.4 "metadata discovery rides on lookup and on the
// first lock acquisition alike"), scales ia_blocks per the combine
// rules, and rejects a CONFIG that disagrees with what this inode
// already believes its own shape to be.
func (v *Volume) rebuildLookup(ictx *eclock.InodeCtx, f *ecfop.Fop) error {
	if f.Answer == nil || f.Answer.Reply == nil {
		return nil
	}
	reply := f.Answer.Reply

	ictx.Mu().Lock()
	defer ictx.Mu().Unlock()

	if len(reply.Config) > 0 {
		cfg, err := ecxattr.DecodeConfig(reply.Config)
		if err != nil {
			return err
		}
		if ictx.HaveConfig && !ecxattr.ConfigsMatch(ictx.Config, cfg) {
			return ec.ErrMetadataCorrupt
		}
		ictx.Config = cfg
		ictx.HaveConfig = true
	}

	ictx.PreVersion = reply.Version
	ictx.Dirty = reply.Dirty
	ictx.HaveVersion = true

	if !ictx.HaveSize || reply.Size > ictx.PreSize {
		ictx.PreSize = reply.Size
		ictx.HaveSize = true
	}
	ictx.PostSize = ictx.PreSize

	f.Answer.Reply.Iatt[0] = eciatt.Rebuild(reply.Iatt[0], v.Config.Fragments, f.Answer.Count)
	return nil
}
