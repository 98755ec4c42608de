// Package ec holds the types the erasure-coded translator core shares:
// the group Config, the brick Mask, and the error taxonomy. The fop
// engine, lock manager, and heal engine live in their own packages and
// are wired together by ops.NewTranslator.
package ec

import (
	"math/bits"
	"strconv"
)

// MaxBricks bounds the bitset below; disperse groups in practice stay
// well under this (N <= 64 covers every deployed configuration).
const MaxBricks = 64

// Mask is a bitset over the N bricks of an EC group. Bit i set means
// brick i is included.
type Mask uint64

// NewMask returns a Mask with the low n bits set.
func NewMask(n int) Mask {
	if n <= 0 {
		return 0
	}
	if n >= MaxBricks {
		return ^Mask(0)
	}
	return Mask(1)<<uint(n) - 1
}

// Set returns the mask with bit i set.
func (m Mask) Set(i int) Mask { return m | Mask(1)<<uint(i) }

// Clear returns the mask with bit i cleared.
func (m Mask) Clear(i int) Mask { return m &^ (Mask(1) << uint(i)) }

// Has reports whether bit i is set.
func (m Mask) Has(i int) bool { return m&(Mask(1)<<uint(i)) != 0 }

// Popcount returns the number of set bits.
func (m Mask) Popcount() int { return bits.OnesCount64(uint64(m)) }

// And, Or, AndNot mirror the bitset algebra used throughout dispatch
// and lock code: mask intersection, union, and subtraction.
func (m Mask) And(o Mask) Mask    { return m & o }
func (m Mask) Or(o Mask) Mask     { return m | o }
func (m Mask) AndNot(o Mask) Mask { return m &^ o }

// IsSubset reports whether m is a subset of o.
func (m Mask) IsSubset(o Mask) bool { return m&o == m }

// Empty reports whether no bit is set.
func (m Mask) Empty() bool { return m == 0 }

// First returns the index of the lowest set bit, or -1 if empty.
func (m Mask) First() int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(m))
}

// Indices returns the set bit positions in ascending order.
func (m Mask) Indices() []int {
	out := make([]int, 0, m.Popcount())
	for i := 0; i < MaxBricks && Mask(1)<<uint(i) <= m; i++ {
		if m.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// String renders the mask as e.g. "{0,2,3}", useful in log lines and
// godebug diffs.
func (m Mask) String() string {
	idx := m.Indices()
	s := "{"
	for i, v := range idx {
		if i > 0 {
			s += ","
		}
		s += strconv.Itoa(v)
	}
	return s + "}"
}
