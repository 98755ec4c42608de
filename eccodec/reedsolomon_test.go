package eccodec

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randomShards(k int, size int64) [][]byte {
	out := make([][]byte, k)
	for i := range out {
		out[i] = make([]byte, size)
		rand.Read(out[i])
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const k, m, size = 4, 2, 4096
	c, err := New(k, m, size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := randomShards(k, size)
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != k+m {
		t.Fatalf("Encode produced %d shards, want %d", len(shards), k+m)
	}

	// Drop two shards (at most M), decode with the surviving K.
	present := make([][]byte, k+m)
	copy(present, shards)
	present[0] = nil
	present[3] = nil

	decoded, err := c.Decode(present)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range data {
		if !bytes.Equal(decoded[i], data[i]) {
			t.Fatalf("decoded shard %d does not match original", i)
		}
	}
}

func TestDecodeFailsWithTooFewShards(t *testing.T) {
	const k, m, size = 4, 2, 128
	c, err := New(k, m, size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := randomShards(k, size)
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	present := make([][]byte, k+m)
	present[0], present[1], present[2] = shards[0], shards[1], shards[2]
	if _, err := c.Decode(present); err != ErrNotEnoughShards {
		t.Fatalf("Decode with K-1 shards: err = %v, want ErrNotEnoughShards", err)
	}
}
