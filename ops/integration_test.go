package ops

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/gluster-labs/ec-core/ecbrick"
	"github.com/gluster-labs/ec-core/eccodec"
)

// newTestVolume wires a Volume over N FakeBricks with a K=4/M=2 shape,
// matching S1/S2 of spec.md §8's end-to-end scenarios.
func newTestVolume(t *testing.T, n, k int) (*Volume, []*ecbrick.FakeBrick) {
	t.Helper()
	clients := make([]ecbrick.Client, n)
	fakes := make([]*ecbrick.FakeBrick, n)
	for i := 0; i < n; i++ {
		b := ecbrick.NewFakeBrick(i)
		fakes[i] = b
		clients[i] = b
	}
	codec, err := eccodec.New(k, n-k, 4096)
	require.NoError(t, err)
	cfg := ec.Config{
		Nodes: n, Fragments: k, Redundancy: n - k,
		GFWordSize: 8, ChunkSize: 4096,
		EagerLock: true, BackgroundHeals: 2, HealWaitQLen: 4, StripeCacheSize: 4,
	}
	require.NoError(t, cfg.Validate())
	return NewTranslator(clients, codec, cfg, zap.NewNop().Sugar(), nil), fakes
}

// TestCreateWriteReadRoundTrip exercises create -> writev -> readv
// across a fresh 6-brick (K=4,M=2) group, mirroring spec.md S1: full
// stripe written at offset 0 must read back identical bytes.
func TestCreateWriteReadRoundTrip(t *testing.T) {
	v, _ := newTestVolume(t, 6, 4)
	ctx := context.Background()

	created, err := v.Create(ctx, [16]byte{}, "file1", 0644, 0, 0, 0)
	require.NoError(t, err)
	require.NotZero(t, created.Fd)

	payload := bytes.Repeat([]byte("A"), 16384) // one full stripe (K*4096)
	wres, err := v.Writev(ctx, created.Fd, 0, payload)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), wres.Written)

	gfid := v.fdCtx(created.Fd).Gfid
	rres, err := v.Readv(ctx, gfid, 0, int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, payload, rres.Data)
}

// TestPartialStripeWrite mirrors spec.md S2: writing 100 bytes at
// offset 50 into a stripe-sized region reads back the 100 bytes
// unchanged, with the rest of the stripe zero.
func TestPartialStripeWrite(t *testing.T) {
	v, _ := newTestVolume(t, 6, 4)
	ctx := context.Background()

	created, err := v.Create(ctx, [16]byte{}, "partial", 0644, 0, 0, 0)
	require.NoError(t, err)

	body := bytes.Repeat([]byte("B"), 100)
	wres, err := v.Writev(ctx, created.Fd, 50, body)
	require.NoError(t, err)
	require.EqualValues(t, 100, wres.Written)

	gfid := v.fdCtx(created.Fd).Gfid
	rres, err := v.Readv(ctx, gfid, 0, 16384)
	require.NoError(t, err)
	require.Equal(t, body, rres.Data[50:150])
	require.True(t, bytes.Equal(rres.Data[:50], bytes.Repeat([]byte{0}, 50)))
}

// TestReadSurvivesBrickLoss mirrors spec.md S1's kill-two-bricks leg:
// after writing a full stripe, two non-overlapping bricks go down and
// a read must still reconstruct the original bytes from the surviving
// four.
func TestReadSurvivesBrickLoss(t *testing.T) {
	v, fakes := newTestVolume(t, 6, 4)
	ctx := context.Background()

	created, err := v.Create(ctx, [16]byte{}, "resilient", 0644, 0, 0, 0)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("C"), 16384)
	_, err = v.Writev(ctx, created.Fd, 0, payload)
	require.NoError(t, err)

	fakes[1].Down = true
	fakes[3].Down = true

	gfid := v.fdCtx(created.Fd).Gfid
	rres, err := v.Readv(ctx, gfid, 0, int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, payload, rres.Data)
}

// TestStatfsQuotaDeemScalesByK covers the open-question decision
// (spec.md §4.3, §9, SPEC_FULL.md open question #2): with
// QuotaDeemStatfs set, the combined Blocks/Bfree/Bavail figures are
// scaled up by K to report logical (not brick-fragment-local) units.
func TestStatfsQuotaDeemScalesByK(t *testing.T) {
	v, fakes := newTestVolume(t, 6, 4)
	v.Config.QuotaDeemStatfs = true
	for _, f := range fakes {
		f.Blocks, f.Bfree, f.Bavail = 1000, 400, 300
	}

	res, err := v.Statfs(context.Background(), [16]byte{})
	require.NoError(t, err)
	require.EqualValues(t, 4000, res.Blocks)
	require.EqualValues(t, 1600, res.Bfree)
	require.EqualValues(t, 1200, res.Bavail)
}

// TestStatfsWithoutQuotaDeemDoesNotScale covers the default path: no
// K-scaling is applied when QuotaDeemStatfs is off.
func TestStatfsWithoutQuotaDeemDoesNotScale(t *testing.T) {
	v, fakes := newTestVolume(t, 6, 4)
	for _, f := range fakes {
		f.Blocks, f.Bfree, f.Bavail = 1000, 400, 300
	}

	res, err := v.Statfs(context.Background(), [16]byte{})
	require.NoError(t, err)
	require.EqualValues(t, 1000, res.Blocks)
	require.EqualValues(t, 400, res.Bfree)
	require.EqualValues(t, 300, res.Bavail)
}
