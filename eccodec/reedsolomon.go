package eccodec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// rsCodec is the default Codec, wrapping klauspost/reedsolomon the way
// aistore's putJogger/getJogger (ec-putjogger.go, ec-getjogger.go) do:
// a stream/byte-slice encoder sized once for a fixed (k, m) shape and
// reused across every stripe of every file in the group.
type rsCodec struct {
	enc          reedsolomon.Encoder
	k, n         int
	fragmentSize int64
}

// New constructs the default Reed-Solomon codec for a (k data, m
// parity) shape and a fixed fragment size.
func New(k, m int, fragmentSize int64) (Codec, error) {
	if k <= 0 || m < 0 {
		return nil, fmt.Errorf("eccodec: invalid shape k=%d m=%d", k, m)
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("eccodec: constructing encoder: %w", err)
	}
	return &rsCodec{enc: enc, k: k, n: k + m, fragmentSize: fragmentSize}, nil
}

func (c *rsCodec) K() int              { return c.k }
func (c *rsCodec) N() int              { return c.n }
func (c *rsCodec) FragmentSize() int64 { return c.fragmentSize }

func (c *rsCodec) Encode(data [][]byte) ([][]byte, error) {
	if len(data) != c.k {
		return nil, fmt.Errorf("eccodec: Encode expects %d data shards, got %d", c.k, len(data))
	}
	shards := make([][]byte, c.n)
	copy(shards, data)
	for i := c.k; i < c.n; i++ {
		shards[i] = make([]byte, c.fragmentSize)
	}
	for i, d := range data {
		if int64(len(d)) != c.fragmentSize {
			return nil, fmt.Errorf("eccodec: data shard %d has length %d, want %d", i, len(d), c.fragmentSize)
		}
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("eccodec: encode: %w", err)
	}
	return shards, nil
}

func (c *rsCodec) Decode(present [][]byte) ([][]byte, error) {
	if len(present) != c.n {
		return nil, fmt.Errorf("eccodec: Decode expects %d shard slots, got %d", c.n, len(present))
	}
	have := 0
	shards := make([][]byte, c.n)
	for i, p := range present {
		if p == nil {
			continue
		}
		if int64(len(p)) != c.fragmentSize {
			return nil, fmt.Errorf("eccodec: fragment %d has length %d, want %d", i, len(p), c.fragmentSize)
		}
		shards[i] = p
		have++
	}
	if have < c.k {
		return nil, ErrNotEnoughShards
	}
	if err := c.enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("eccodec: reconstruct: %w", err)
	}
	return shards[:c.k], nil
}
