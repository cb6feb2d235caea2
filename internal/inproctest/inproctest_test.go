package inproctest_test

import (
	"context"
	"testing"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/internal/inproctest"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

func TestPairPingPong(t *testing.T) {
	a, b := inproctest.Pair()
	defer hvfs.Close(a)
	defer hvfs.Close(b)

	va, _ := hvfs.Query(a, hvfs.TagByteStream)
	ca := va.(bsock.Conn)
	vb, _ := hvfs.Query(b, hvfs.TagByteStream)
	cb := vb.(bsock.Conn)

	ctx := context.Background()
	go func() { _ = ca.Bsend(ctx, iolist.One([]byte("ABC")), hvfs.Forever) }()
	buf := make([]byte, 3)
	if err := cb.Brecv(ctx, iolist.One(buf), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if string(buf) != "ABC" {
		t.Fatalf("got %q, want ABC", buf)
	}

	go func() { _ = cb.Bsend(ctx, iolist.One([]byte("DEF")), hvfs.Forever) }()
	if err := ca.Brecv(ctx, iolist.One(buf), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if string(buf) != "DEF" {
		t.Fatalf("got %q, want DEF", buf)
	}
}
