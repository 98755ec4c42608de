package eciatt

import (
	"testing"
	"time"
)

func TestCombineTrustedMismatchAborts(t *testing.T) {
	a := Iatt{Ino: 1, Size: 100}
	b := Iatt{Ino: 1, Size: 200}
	if _, ok := Combine(a, b, true); ok {
		t.Fatalf("trusted size mismatch should abort combine")
	}
}

func TestCombineUntrustedMismatchIgnored(t *testing.T) {
	a := Iatt{Ino: 1, Size: 100}
	b := Iatt{Ino: 1, Size: 200}
	merged, ok := Combine(a, b, false)
	if !ok {
		t.Fatalf("untrusted mismatch must not abort combine")
	}
	if merged.Size != 100 {
		t.Fatalf("untrusted combine should keep representative's size, got %d", merged.Size)
	}
}

func TestCombineBlocksAndTimes(t *testing.T) {
	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)
	a := Iatt{Ino: 1, Blocks: 4, Blksize: 4096, Mtime: t1}
	b := Iatt{Ino: 1, Blocks: 6, Blksize: 8192, Mtime: t2}
	merged, ok := Combine(a, b, true)
	if !ok {
		t.Fatalf("combine should succeed")
	}
	if merged.Blocks != 10 {
		t.Fatalf("Blocks = %d, want 10", merged.Blocks)
	}
	if merged.Blksize != 8192 {
		t.Fatalf("Blksize = %d, want max 8192", merged.Blksize)
	}
	if !merged.Mtime.Equal(t2) {
		t.Fatalf("Mtime should be the later of the two")
	}
}

func TestCombineIdentityMismatchAlwaysAborts(t *testing.T) {
	a := Iatt{Ino: 1}
	b := Iatt{Ino: 2}
	if _, ok := Combine(a, b, false); ok {
		t.Fatalf("ino mismatch must abort even when untrusted")
	}
}

func TestRebuildScalesBlocks(t *testing.T) {
	iatt := Iatt{Blocks: 8}
	got := Rebuild(iatt, 4, 4)
	if got.Blocks != 8 {
		t.Fatalf("Rebuild with answers==K should be a no-op, got %d", got.Blocks)
	}
	got = Rebuild(Iatt{Blocks: 8}, 4, 8)
	if got.Blocks != 4 {
		t.Fatalf("Rebuild(8 blocks, K=4, answers=8) = %d, want 4", got.Blocks)
	}
}
