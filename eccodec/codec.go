// Package eccodec defines the Reed-Solomon codec boundary the EC core
// depends on (spec.md §1: "we require only encode(K data stripes) → N
// fragments and decode(≥K arbitrary surviving fragments) → data").
// The codec itself, and the wire format of a fragment, are external
// collaborators; this package only pins the interface and ships one
// default implementation.
package eccodec

import "fmt"

// Codec is the trait spec.md §9 calls for: encode/decode plus the
// fragment size they operate on.
type Codec interface {
	// Encode takes K data stripes of FragmentSize() bytes each and
	// returns N fragments (the K inputs are echoed through unless the
	// implementation mutates in place, followed by M parity
	// fragments).
	Encode(data [][]byte) ([][]byte, error)

	// Decode reconstructs the K data fragments from any K of the N
	// total fragments. present lists, for each index 0..N-1, the
	// fragment bytes if available or nil if missing/not provided;
	// len(present) must equal N and at least K entries must be
	// non-nil.
	Decode(present [][]byte) ([][]byte, error)

	// FragmentSize returns the fixed per-fragment size in bytes.
	FragmentSize() int64

	// K and N report the data/total shard counts.
	K() int
	N() int
}

// ErrNotEnoughShards is returned by Decode when fewer than K fragments
// are present.
var ErrNotEnoughShards = fmt.Errorf("eccodec: fewer than K fragments present")
