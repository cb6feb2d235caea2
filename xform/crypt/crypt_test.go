package crypt_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/internal/inproctest"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/xform/crypt"
)

func gcm(t *testing.T) cipher.AEAD {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("cipher.NewGCM: %v", err)
	}
	return aead
}

func TestRoundTrip(t *testing.T) {
	a, b := inproctest.Pair()
	key := gcm(t)
	ha, err := crypt.Start(a, key)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	hb, err := crypt.Start(b, key)
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
	payload := []byte("top secret payload")
	go func() { _ = ca.Bsend(ctx, iolist.One(payload), hvfs.Forever) }()

	got := make([]byte, len(payload))
	if err := cb.Brecv(ctx, iolist.One(got), hvfs.Forever); err != nil {
		t.Fatalf("Brecv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

// TestSplitAcrossSmallerRecvCalls proves Brecv's call granularity is
// independent of Bsend's: a single sealed record is claimed across several
// small reads (as framing/pfx's header-then-payload Mrecv would do when
// composed over this layer), not just one Brecv per Bsend.
func TestSplitAcrossSmallerRecvCalls(t *testing.T) {
	a, b := inproctest.Pair()
	key := gcm(t)
	ha, err := crypt.Start(a, key)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	hb, err := crypt.Start(b, key)
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
	payload := []byte("a-length-prefixed-payload-of-twenty-eight")
	go func() { _ = ca.Bsend(ctx, iolist.One(payload), hvfs.Forever) }()

	// Read it back as an 8-byte "header" then the remaining "body", the
	// way framing/pfx's Mrecv issues two independent Brecv calls per
	// message instead of one call sized to the whole record.
	header := make([]byte, 8)
	if err := cb.Brecv(ctx, iolist.One(header), hvfs.Forever); err != nil {
		t.Fatalf("Brecv header: %v", err)
	}
	body := make([]byte, len(payload)-len(header))
	if err := cb.Brecv(ctx, iolist.One(body), hvfs.Forever); err != nil {
		t.Fatalf("Brecv body: %v", err)
	}
	got := append(header, body...)
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

// TestMultipleRecordsAcrossMismatchedCalls sends several differently-sized
// records and reads them back through a fixed, unrelated recv chunk size,
// mirroring xform/lz4/lz4_test.go's TestMultipleFrames.
func TestMultipleRecordsAcrossMismatchedCalls(t *testing.T) {
	a, b := inproctest.Pair()
	key := gcm(t)
	ha, err := crypt.Start(a, key)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	hb, err := crypt.Start(b, key)
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
	msgs := []string{"one", "two-two", "three-three-three"}
	go func() {
		for _, m := range msgs {
			if err := ca.Bsend(ctx, iolist.One([]byte(m)), hvfs.Forever); err != nil {
				return
			}
		}
	}()

	want := []byte(msgs[0] + msgs[1] + msgs[2])
	got := make([]byte, 0, len(want))
	chunk := make([]byte, 4) // chunk size unrelated to any message's length
	for len(got) < len(want) {
		n := len(chunk)
		if rem := len(want) - len(got); rem < n {
			n = rem
		}
		if err := cb.Brecv(ctx, iolist.One(chunk[:n]), hvfs.Forever); err != nil {
			t.Fatalf("Brecv: %v", err)
		}
		got = append(got, chunk[:n]...)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTamperedRecordRejected(t *testing.T) {
	a, b := inproctest.Pair()
	key := gcm(t)
	ha, err := crypt.Start(a, key)
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	defer hvfs.Close(ha)
	defer hvfs.Close(b)

	va, _ := hvfs.Query(ha, hvfs.TagByteStream)
	ca := va.(bsock.Conn)

	ctx := context.Background()
	go func() { _ = ca.Bsend(ctx, iolist.One([]byte("hello")), hvfs.Forever) }()

	// Read the raw framed record directly off the lower handle and corrupt
	// one ciphertext byte before attempting to decrypt it with the shared
	// key and the first record's nonce, simulating tampering in transit.
	rawV, _ := hvfs.Query(b, hvfs.TagByteStream)
	raw := rawV.(bsock.Conn)

	var hdr [4]byte
	if err := raw.Brecv(ctx, iolist.One(hdr[:]), hvfs.Forever); err != nil {
		t.Fatalf("Brecv hdr: %v", err)
	}
	n := int(hdr[0])<<24 | int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	sealed := make([]byte, n)
	if err := raw.Brecv(ctx, iolist.One(sealed), hvfs.Forever); err != nil {
		t.Fatalf("Brecv sealed: %v", err)
	}
	sealed[0] ^= 0xFF

	block, _ := aes.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	aead, _ := cipher.NewGCM(block)
	nonce := make([]byte, aead.NonceSize())
	if _, err := aead.Open(nil, nonce, sealed, nil); err == nil {
		t.Fatalf("expected AEAD to reject a tampered record")
	}
}
