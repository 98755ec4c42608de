package ec

import "testing"

func TestConfigValidate(t *testing.T) {
	cfg := Config{Nodes: 6, Fragments: 4, Redundancy: 2, GFWordSize: 8, ChunkSize: 4096}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if cfg.StripeSize() != 16384 {
		t.Fatalf("StripeSize() = %d, want 16384", cfg.StripeSize())
	}
}

func TestConfigValidateRejectsBadShape(t *testing.T) {
	cases := []Config{
		{Nodes: 6, Fragments: 3, Redundancy: 3, GFWordSize: 8, ChunkSize: 4096}, // 2M == N
		{Nodes: 6, Fragments: 4, Redundancy: 2, GFWordSize: 3, ChunkSize: 4096}, // not power of 2
		{Nodes: 6, Fragments: 4, Redundancy: 2, GFWordSize: 8, ChunkSize: 1},    // misaligned
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error, got nil", i)
		}
	}
}

func TestDecodeOptionsDefaultsAndOverrides(t *testing.T) {
	cfg, err := DecodeOptions(map[string]string{
		"nodes":          "6",
		"fragments":      "4",
		"read-policy":    "gfid-hash",
		"eager-lock":     "false",
		"heal-wait-qlen": "256",
	})
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if cfg.Nodes != 6 || cfg.Fragments != 4 || cfg.Redundancy != 2 {
		t.Fatalf("unexpected shape: %+v", cfg)
	}
	if cfg.ReadPolicy != ReadPolicyGfidHash {
		t.Fatalf("ReadPolicy = %v, want gfid-hash", cfg.ReadPolicy)
	}
	if cfg.EagerLock {
		t.Fatalf("EagerLock should be overridden to false")
	}
	if cfg.HealWaitQLen != 256 {
		t.Fatalf("HealWaitQLen = %d, want 256", cfg.HealWaitQLen)
	}
	if cfg.BackgroundHeals != 8 {
		t.Fatalf("BackgroundHeals default not preserved: %d", cfg.BackgroundHeals)
	}
}

func TestParseReadPolicyRejectsUnknown(t *testing.T) {
	if _, err := ParseReadPolicy("fastest"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
