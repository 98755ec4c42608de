package ecbrick

import (
	"context"
	"syscall"
	"testing"
)

func TestFakeBrickCreateWriteReadv(t *testing.T) {
	b := NewFakeBrick(0)
	ctx := context.Background()

	gfid := [16]byte{1}
	var root [16]byte
	reply, err := b.Do(ctx, OpCreate, &Request{Gfid: gfid, ParentGfid: root, Name: "foo", Mode: 0644})
	if err != nil || reply.OpRet != 0 {
		t.Fatalf("create: reply=%+v err=%v", reply, err)
	}

	reply, err = b.Do(ctx, OpWritev, &Request{Gfid: gfid, Offset: 0, Data: []byte("hello")})
	if err != nil || reply.OpRet != 5 {
		t.Fatalf("writev: reply=%+v err=%v", reply, err)
	}

	reply, err = b.Do(ctx, OpReadv, &Request{Gfid: gfid, Offset: 0, Size: 5})
	if err != nil || string(reply.Data) != "hello" {
		t.Fatalf("readv: reply=%+v err=%v", reply, err)
	}
}

func TestFakeBrickDownReturnsENOTCONN(t *testing.T) {
	b := NewFakeBrick(0)
	b.Down = true
	_, err := b.Do(context.Background(), OpStat, &Request{})
	if err != syscall.ENOTCONN {
		t.Fatalf("err = %v, want ENOTCONN", err)
	}
}

func TestFakeBrickXattropAccumulates(t *testing.T) {
	b := NewFakeBrick(0)
	ctx := context.Background()
	gfid := [16]byte{2}
	var root [16]byte
	if _, err := b.Do(ctx, OpCreate, &Request{Gfid: gfid, ParentGfid: root, Name: "bar", Mode: 0644}); err != nil {
		t.Fatal(err)
	}
	req := &Request{Gfid: gfid, XattropDict: map[string][]int64{"version": {1, 0}}}
	r, err := b.Do(ctx, OpXattrop, req)
	if err != nil || r.Version != [2]int64{1, 0} {
		t.Fatalf("xattrop: r=%+v err=%v", r, err)
	}
	r, err = b.Do(ctx, OpXattrop, req)
	if err != nil || r.Version != [2]int64{2, 0} {
		t.Fatalf("xattrop accumulate: r=%+v err=%v", r, err)
	}
}

func TestFakeBrickInodelkMutualExclusion(t *testing.T) {
	b := NewFakeBrick(0)
	ctx := context.Background()
	gfid := [16]byte{3}
	req := &Request{Gfid: gfid, LockDomain: "d", LockCmd: SetLKW, LockType: WriteLock}
	r, err := b.Do(ctx, OpInodelk, req)
	if err != nil || r.OpRet != 0 {
		t.Fatalf("first lock should succeed: %+v %v", r, err)
	}
	r, err = b.Do(ctx, OpInodelk, req)
	if err != nil || r.OpRet == 0 {
		t.Fatalf("second lock should fail: %+v %v", r, err)
	}
	req.LockCmd = Unlock
	if r, err = b.Do(ctx, OpInodelk, req); err != nil || r.OpRet != 0 {
		t.Fatalf("unlock should succeed: %+v %v", r, err)
	}
}
