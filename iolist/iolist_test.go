package iolist_test

import (
	"bytes"
	"testing"

	"github.com/MarcusAsynchronous/dsock/iolist"
)

func TestLenAndFlatten(t *testing.T) {
	a := []byte("abc")
	b := []byte("de")
	l := iolist.Of(iolist.Buf(a), iolist.Discard(3), iolist.Buf(b))
	if l.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", l.Len())
	}
	if !bytes.Equal(l.Flatten(), []byte("abcde")) {
		t.Fatalf("Flatten() = %q, want abcde", l.Flatten())
	}
}

func TestValidateSendRejectsDiscard(t *testing.T) {
	l := iolist.Of(iolist.Discard(4))
	if err := l.ValidateSend(); err == nil {
		t.Fatalf("expected error for discard segment on send")
	}
	l2 := iolist.Of(iolist.Buf([]byte("ok")))
	if err := l2.ValidateSend(); err != nil {
		t.Fatalf("ValidateSend() = %v, want nil", err)
	}
}

func TestPrependAppendDontMutate(t *testing.T) {
	base := iolist.One([]byte("mid"))
	hdr := iolist.Buf([]byte("HDR"))
	trl := iolist.Buf([]byte("TRL"))

	full := iolist.Append(iolist.Prepend(hdr, base), trl)
	if !bytes.Equal(full.Flatten(), []byte("HDRmidTRL")) {
		t.Fatalf("full = %q", full.Flatten())
	}
	if !bytes.Equal(base.Flatten(), []byte("mid")) {
		t.Fatalf("base must be untouched, got %q", base.Flatten())
	}
}

func TestTakeSplitsSegment(t *testing.T) {
	l := iolist.Of(iolist.Buf([]byte("hello")), iolist.Buf([]byte("world")))
	head, err := l.Take(7)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if !bytes.Equal(head.Flatten(), []byte("hellowo")) {
		t.Fatalf("head = %q, want hellowo", head.Flatten())
	}
	if !bytes.Equal(l.Flatten(), []byte("helloworld")) {
		t.Fatalf("Take must not mutate the original list, got %q", l.Flatten())
	}
}

func TestTakeTooLong(t *testing.T) {
	l := iolist.One([]byte("abc"))
	if _, err := l.Take(10); err == nil {
		t.Fatalf("expected error taking more bytes than available")
	}
}

func TestCopyFrom(t *testing.T) {
	dst1 := make([]byte, 3)
	dst2 := make([]byte, 2)
	l := iolist.Of(iolist.Buf(dst1), iolist.Discard(1), iolist.Buf(dst2))
	n, err := l.CopyFrom([]byte("abcXde"))
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if n != 6 {
		t.Fatalf("n = %d, want 6", n)
	}
	if !bytes.Equal(dst1, []byte("abc")) || !bytes.Equal(dst2, []byte("de")) {
		t.Fatalf("dst1=%q dst2=%q", dst1, dst2)
	}
}
