package lz4_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/internal/inproctest"
	"github.com/MarcusAsynchronous/dsock/iolist"
	lz4x "github.com/MarcusAsynchronous/dsock/xform/lz4"
)

func TestRoundTrip(t *testing.T) {
	a, b := inproctest.Pair()
	ha, err := lz4x.Start(a)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	hb, err := lz4x.Start(b)
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(hb)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(bsock.Conn)
	vb, _ := hvfs.Query(hb, hvfs.TagByteStream)
	cb := vb.(bsock.Conn)

	ctx := context.Background()
	payload := []byte(strings.Repeat("compress-me ", 200))
	go func() { _ = ca.Bsend(ctx, iolist.One(payload), hvfs.Forever) }()

	got := make([]byte, len(payload))
	if err := cb.Brecv(ctx, iolist.One(got), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestMultipleFrames(t *testing.T) {
	a, b := inproctest.Pair()
	ha, err := lz4x.Start(a)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	hb, err := lz4x.Start(b)
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(hb)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(bsock.Conn)
	vb, _ := hvfs.Query(hb, hvfs.TagByteStream)
	cb := vb.(bsock.Conn)

	ctx := context.Background()
	msgs := []string{"one", "two", "three"}
	go func() {
		for _, m := range msgs {
			if err := ca.Bsend(ctx, iolist.One([]byte(m)), hvfs.Forever); err != nil {
				return
			}
		}
	}()

	for _, want := range msgs {
		got := make([]byte, len(want))
		if err := cb.Brecv(ctx, iolist.One(got), hvfs.Forever); err != nil {
			t.Fatalf("Brecv: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
