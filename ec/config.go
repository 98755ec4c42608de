package ec

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ReadPolicy selects which brick is tried first for a fop that only
// needs to hit one or K bricks.
type ReadPolicy int

const (
	// ReadPolicyRoundRobin advances a process-wide counter per fop.
	ReadPolicyRoundRobin ReadPolicy = iota
	// ReadPolicyGfidHash picks first = hash(gfid) mod N.
	ReadPolicyGfidHash
)

func (p ReadPolicy) String() string {
	if p == ReadPolicyGfidHash {
		return "gfid-hash"
	}
	return "round-robin"
}

// ParseReadPolicy decodes the "read-policy" option string (spec.md §6).
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch s {
	case "", "round-robin":
		return ReadPolicyRoundRobin, nil
	case "gfid-hash":
		return ReadPolicyGfidHash, nil
	default:
		return 0, fmt.Errorf("ec: unknown read-policy %q", s)
	}
}

// Config is the immutable EC group configuration stored per-inode in
// the CONFIG xattr and validated on every read (spec.md §3, §4.4).
type Config struct {
	// Nodes is N, the total number of bricks in the group.
	Nodes int `mapstructure:"nodes"`
	// Fragments is K, the number of data fragments per stripe.
	Fragments int `mapstructure:"fragments"`
	// Redundancy is M = N-K.
	Redundancy int `mapstructure:"redundancy"`
	// GFWordSize is the Galois field word size, a power of 2.
	GFWordSize int `mapstructure:"gf-word-size"`
	// ChunkSize is the per-brick fragment size in bytes.
	ChunkSize int64 `mapstructure:"chunk-size"`

	ReadPolicy      ReadPolicy `mapstructure:"-"`
	EagerLock       bool       `mapstructure:"eager-lock"`
	BackgroundHeals int        `mapstructure:"background-heals"`
	HealWaitQLen    int        `mapstructure:"heal-wait-qlen"`
	StripeCacheSize int        `mapstructure:"stripe-cache"`
	QuotaDeemStatfs bool       `mapstructure:"quota-deem-statfs"`

	// Version and Algorithm are opaque identifiers persisted in the
	// on-disk CONFIG xattr (spec.md §6); Version lets a future format
	// change be detected, Algorithm selects the codec implementation.
	Version   uint8 `mapstructure:"-"`
	Algorithm uint8 `mapstructure:"-"`
}

// FragmentSize is an alias for ChunkSize: the brick-local size of one
// fragment of a stripe (spec.md §3).
func (c Config) FragmentSize() int64 { return c.ChunkSize }

// StripeSize is K * FragmentSize, the logical unit of aligned I/O.
func (c Config) StripeSize() int64 { return int64(c.Fragments) * c.ChunkSize }

// Validate checks the invariants from spec.md §3: 0 < M < N-M (i.e.
// 2M < N), chunk_size*8 a multiple of gf_word_size*K, and a power-of-2
// word size.
func (c Config) Validate() error {
	if c.Nodes <= 0 || c.Fragments <= 0 {
		return fmt.Errorf("ec: nodes and fragments must be positive")
	}
	m := c.Nodes - c.Fragments
	if c.Redundancy != 0 && c.Redundancy != m {
		return fmt.Errorf("ec: redundancy %d does not match nodes-fragments %d", c.Redundancy, m)
	}
	if !(m > 0 && 2*m < c.Nodes) {
		return fmt.Errorf("ec: invalid EC shape N=%d K=%d M=%d, need 0<M<N-M", c.Nodes, c.Fragments, m)
	}
	if c.GFWordSize <= 0 || c.GFWordSize&(c.GFWordSize-1) != 0 {
		return fmt.Errorf("ec: gf-word-size %d is not a power of 2", c.GFWordSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ec: chunk-size must be positive")
	}
	if (c.ChunkSize*8)%int64(c.GFWordSize*c.Fragments) != 0 {
		return fmt.Errorf("ec: chunk-size*8 must be a multiple of gf-word-size*fragments")
	}
	return nil
}

// DefaultOptions returns the init-time defaults enumerated in spec.md
// §6, before any overrides are decoded.
func DefaultOptions() Config {
	return Config{
		GFWordSize:      8,
		ReadPolicy:      ReadPolicyRoundRobin,
		EagerLock:       true,
		BackgroundHeals: 8,
		HealWaitQLen:    128,
		StripeCacheSize: 4,
	}
}

// DecodeOptions decodes the translator's option dictionary (a flat
// map[string]string handed down by the volume graph at boot) into a
// Config, starting from DefaultOptions. This mirrors gcsfuse/cfg's use
// of mapstructure for declarative option decoding rather than a
// hand-rolled per-key switch.
func DecodeOptions(opts map[string]string) (Config, error) {
	cfg := DefaultOptions()

	raw := make(map[string]interface{}, len(opts))
	for k, v := range opts {
		raw[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("ec: decoding options: %w", err)
	}

	if rp, ok := opts["read-policy"]; ok {
		policy, err := ParseReadPolicy(rp)
		if err != nil {
			return cfg, err
		}
		cfg.ReadPolicy = policy
	}

	if cfg.Redundancy == 0 && cfg.Nodes > 0 && cfg.Fragments > 0 {
		cfg.Redundancy = cfg.Nodes - cfg.Fragments
	}

	return cfg, nil
}
