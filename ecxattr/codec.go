// Package ecxattr encodes and decodes the four on-disk extended
// attributes the EC translator owns (spec.md §6): VERSION, DIRTY,
// SIZE, CONFIG. All integers are big-endian; this is the single
// helper pair spec.md §9 calls for, rather than scattering
// encoding/decoding across callers.
package ecxattr

import (
	"encoding/binary"
	"fmt"

	"github.com/gluster-labs/ec-core/ec"
)

// Names of the on-disk xattrs, per spec.md §6.
const (
	NameVersion = "trusted.ec.version"
	NameDirty   = "trusted.ec.dirty"
	NameSize    = "trusted.ec.size"
	NameConfig  = "trusted.ec.config"
)

// TxClass indexes the two transaction classes tracked by VERSION and
// DIRTY (spec.md §3).
type TxClass int

const (
	Data TxClass = iota
	Metadata
	numTxClasses
)

// EncodeVersionPair encodes a [2]int64 as big-endian u64 pair. DIRTY
// may be transiently negative during erasure (spec.md §6) so the wire
// representation is the two's-complement bit pattern of an int64, not
// an unsigned range check.
func EncodeVersionPair(v [2]int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(v[0]))
	binary.BigEndian.PutUint64(buf[8:16], uint64(v[1]))
	return buf
}

// DecodeVersionPair decodes the wire form produced by EncodeVersionPair.
func DecodeVersionPair(b []byte) ([2]int64, error) {
	var v [2]int64
	if len(b) != 16 {
		return v, fmt.Errorf("%w: version pair must be 16 bytes, got %d", ec.ErrMetadataCorrupt, len(b))
	}
	v[0] = int64(binary.BigEndian.Uint64(b[0:8]))
	v[1] = int64(binary.BigEndian.Uint64(b[8:16]))
	return v, nil
}

// EncodeSize encodes the authoritative logical file size.
func EncodeSize(size uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, size)
	return buf
}

// DecodeSize decodes a SIZE xattr value.
func DecodeSize(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: size must be 8 bytes, got %d", ec.ErrMetadataCorrupt, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// ConfigWireSize is the length of the packed on-disk representation of
// ec.Config (spec.md
// §6): {version:u8, algorithm:u8, word:u8, bricks:u8, redundancy:u8,
// chunk:u32}, 9 bytes total.
const ConfigWireSize = 9

// EncodeConfig packs the immutable EC shape into its on-disk form.
func EncodeConfig(cfg ec.Config) []byte {
	buf := make([]byte, ConfigWireSize)
	buf[0] = cfg.Version
	buf[1] = cfg.Algorithm
	buf[2] = byte(cfg.GFWordSize)
	buf[3] = byte(cfg.Nodes)
	buf[4] = byte(cfg.Redundancy)
	binary.BigEndian.PutUint32(buf[5:9], uint32(cfg.ChunkSize))
	return buf
}

// DecodeConfig unpacks the on-disk CONFIG xattr. The caller is
// responsible for comparing the result against the in-memory Config
// it expects; a mismatch is fatal for that inode per spec.md §4.4.
func DecodeConfig(b []byte) (ec.Config, error) {
	var cfg ec.Config
	if len(b) != ConfigWireSize {
		return cfg, fmt.Errorf("%w: config must be %d bytes, got %d", ec.ErrMetadataCorrupt, ConfigWireSize, len(b))
	}
	cfg.Version = b[0]
	cfg.Algorithm = b[1]
	cfg.GFWordSize = int(b[2])
	cfg.Nodes = int(b[3])
	cfg.Redundancy = int(b[4])
	cfg.Fragments = cfg.Nodes - cfg.Redundancy
	cfg.ChunkSize = int64(binary.BigEndian.Uint32(b[5:9]))
	return cfg, nil
}

// ConfigsMatch compares two decoded configs on the fields that must be
// identical across every brick and every reader (everything except the
// derived Fragments/runtime-only fields already mirror Nodes/Redundancy).
func ConfigsMatch(a, b ec.Config) bool {
	return a.Version == b.Version &&
		a.Algorithm == b.Algorithm &&
		a.GFWordSize == b.GFWordSize &&
		a.Nodes == b.Nodes &&
		a.Redundancy == b.Redundancy &&
		a.ChunkSize == b.ChunkSize
}
