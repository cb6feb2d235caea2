package trace_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/MarcusAsynchronous/dsock/cmn/nlog"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/internal/inproctest"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/xform/trace"
)

// TestValuePreserving certifies bsend(trace(x)) is byte-identical to
// bsend(x): the whole point of a pass-through tracing layer.
func TestValuePreserving(t *testing.T) {
	var logBuf bytes.Buffer
	nlog.SetOutput(&logBuf)
	defer nlog.SetOutput(nil)

	a, b := inproctest.Pair()
	ha, err := trace.Start(a, "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(b)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(interface {
		Bsend(context.Context, *iolist.List, hvfs.Deadline) error
	})
	vb, _ := hvfs.Query(b, hvfs.TagByteStream)
	cb := vb.(interface {
		Brecv(context.Context, *iolist.List, hvfs.Deadline) error
	})

	ctx := context.Background()
	payload := []byte("the quick brown fox")
	go func() { _ = ca.Bsend(ctx, iolist.One(payload), hvfs.Forever) }()

	got := make([]byte, len(payload))
	if err := cb.Brecv(ctx, iolist.One(got), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
	if logBuf.Len() == 0 {
		t.Fatalf("expected trace output to be logged")
	}
}

func TestCounters(t *testing.T) {
	nlog.SetOutput(bytes.NewBuffer(nil))
	defer nlog.SetOutput(nil)

	a, b := inproctest.Pair()
	ha, err := trace.Start(a, "counter-test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(b)

	v, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := v.(interface {
		Bsend(context.Context, *iolist.List, hvfs.Deadline) error
	})
	vb, _ := hvfs.Query(b, hvfs.TagByteStream)
	cb := vb.(interface {
		Brecv(context.Context, *iolist.List, hvfs.Deadline) error
	})

	ctx := context.Background()
	sendErr := make(chan error, 1)
	go func() { sendErr <- ca.Bsend(ctx, iolist.One([]byte("12345")), hvfs.Forever) }()
	if err := cb.Brecv(ctx, iolist.One(make([]byte, 5)), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	// the counter is bumped once the lower Bsend returns, so wait for it
	if err := <-sendErr; err != nil {
		t.Fatalf("Bsend: %v", err)
	}

	tc, _ := hvfs.VFSOf(ha)
	sent, _ := tc.(*trace.Conn).Counters()
	if sent != 5 {
		t.Fatalf("sent counter = %d, want 5", sent)
	}
}
