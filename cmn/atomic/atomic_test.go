package atomic_test

import (
	"testing"

	"github.com/MarcusAsynchronous/dsock/cmn/atomic"
)

func TestBool(t *testing.T) {
	var b atomic.Bool
	if b.Load() {
		t.Fatalf("zero value should be false")
	}
	b.Store(true)
	if !b.Load() {
		t.Fatalf("expected true after Store")
	}
	if !b.CAS(true, false) {
		t.Fatalf("CAS(true, false) should succeed")
	}
	if b.CAS(true, false) {
		t.Fatalf("CAS(true, false) should fail when current value is false")
	}
	old := b.Swap(true)
	if old {
		t.Fatalf("expected old value false before swap")
	}
	if !b.Load() {
		t.Fatalf("expected true after Swap")
	}
}

func TestInt32(t *testing.T) {
	var i atomic.Int32
	i.Store(10)
	if i.Load() != 10 {
		t.Fatalf("got %d, want 10", i.Load())
	}
	if got := i.Add(5); got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
	if !i.CAS(15, 20) {
		t.Fatalf("CAS(15, 20) should succeed")
	}
	if i.Load() != 20 {
		t.Fatalf("got %d, want 20", i.Load())
	}
}

func TestInt64(t *testing.T) {
	var i atomic.Int64
	i.Store(100)
	if got := i.Add(-50); got != 50 {
		t.Fatalf("got %d, want 50", got)
	}
	if got := i.Swap(7); got != 50 {
		t.Fatalf("got %d, want old value 50", got)
	}
	if !i.CAS(7, 8) {
		t.Fatalf("CAS(7, 8) should succeed")
	}
	if i.Load() != 8 {
		t.Fatalf("got %d, want 8", i.Load())
	}
}
