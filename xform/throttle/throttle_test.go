package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/internal/inproctest"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/xform/throttle"
)

func TestThrottledSendStillDelivers(t *testing.T) {
	a, b := inproctest.Pair()
	ha, err := throttle.Start(a, throttle.Limits{SendRate: 1000, Burst: 1000})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(b)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(bsock.Conn)
	vb, _ := hvfs.Query(b, hvfs.TagByteStream)
	cb := vb.(bsock.Conn)

	ctx := context.Background()
	go func() { _ = ca.Bsend(ctx, iolist.One([]byte("hi")), hvfs.Forever) }()

	buf := make([]byte, 2)
	if err := cb.Brecv(ctx, iolist.One(buf), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("got %q", buf)
	}
}

func TestThrottleDeadlineExpires(t *testing.T) {
	a, b := inproctest.Pair()
	defer hvfs.Close(b)
	// one token/second burst 1: second send must wait past a short deadline
	ha, err := throttle.Start(a, throttle.Limits{SendRate: 1, Burst: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hvfs.Close(ha)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(bsock.Conn)

	ctx := context.Background()
	vb, _ := hvfs.Query(b, hvfs.TagByteStream)
	cb := vb.(bsock.Conn)
	go func() { _ = cb.Brecv(ctx, iolist.One(make([]byte, 1)), hvfs.Forever) }()
	if err := ca.Bsend(ctx, iolist.One([]byte("a")), hvfs.Forever); err != nil {
		t.Fatalf("first Bsend: %v", err)
	}

	dl := hvfs.NewDeadline(20 * time.Millisecond)
	err = ca.Bsend(ctx, iolist.One([]byte("b")), dl)
	if err == nil {
		t.Fatalf("expected second send to be throttled past its short deadline")
	}
}
