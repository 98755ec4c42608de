package ops

import (
	"context"

	"github.com/gluster-labs/ec-core/echeal"
)

// IPC is EC's private control channel (spec.md SUPPLEMENTED FEATURES
// "ipc-as-heal-trigger"): rather than wiring a whole separate healer
// RPC surface, an IPC call submits this inode to the heal pool and
// blocks for the result, mirroring the real translator's use of IPC
// for exactly this purpose.
func (v *Volume) IPC(ctx context.Context, gfid, parent [16]byte, name string, isDir bool) (*echeal.Result, error) {
	return v.Heals.Submit(ctx, echeal.Request{
		Gfid:   gfid,
		Parent: parent,
		Name:   name,
		Mask:   v.mask(),
		IsDir:  isDir,
	}, false)
}

// requestBackgroundHeal fires a best-effort, non-blocking heal
// request at the pool (spec.md §4.6 background healing): failures
// (including ec.ErrHealBusy) are swallowed since a missed opportunistic
// heal just means the next Readdir on this directory will try again.
func (v *Volume) requestBackgroundHeal(gfid, parent [16]byte, name string, isDir bool) {
	go func() {
		_, _ = v.Heals.Submit(context.Background(), echeal.Request{
			Gfid:   gfid,
			Parent: parent,
			Name:   name,
			Mask:   v.mask(),
			IsDir:  isDir,
		}, true)
	}()
}
