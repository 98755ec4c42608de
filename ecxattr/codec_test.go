package ecxattr

import (
	"testing"

	"github.com/gluster-labs/ec-core/ec"
	"github.com/stretchr/testify/require"
)

func TestVersionPairRoundTrip(t *testing.T) {
	in := [2]int64{42, -7}
	out, err := DecodeVersionPair(EncodeVersionPair(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestVersionPairRejectsShortBuffer(t *testing.T) {
	_, err := DecodeVersionPair([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSizeRoundTrip(t *testing.T) {
	out, err := DecodeSize(EncodeSize(1 << 40))
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, out)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := ec.Config{Version: 1, Algorithm: 1, GFWordSize: 8, Nodes: 6, Redundancy: 2, ChunkSize: 4096}
	out, err := DecodeConfig(EncodeConfig(cfg))
	require.NoError(t, err)
	require.True(t, ConfigsMatch(cfg, out))
	require.Equal(t, 4, out.Fragments)
}

func TestConfigsMatchDetectsMismatch(t *testing.T) {
	a := ec.Config{Nodes: 6, Redundancy: 2, ChunkSize: 4096, GFWordSize: 8}
	b := a
	b.ChunkSize = 8192
	require.False(t, ConfigsMatch(a, b))
}
