// Package iolist implements the scatter/gather I/O-list contract (spec §3,
// §9): a chain of (base, length) segments where a nil base means "skip n
// bytes" on receive and is an error on send.
//
// Grounded on original_source/iov.c and original_source/iovhelpers.h. The
// original is a linked list because a layer may need to prepend a header
// segment or append a trailer segment ahead of an existing chain and then
// "undo" that splice before returning (restoring the caller's list shape).
// In Go, a []Segment slice gives us that same contract for free: Prepend
// and Append build a brand-new slice and never mutate the caller's List,
// so there is nothing to restore and no possibility of an accidental
// cycle — the "restore on return" and "no cycles" requirements from
// spec.md §9 are satisfied structurally rather than by bookkeeping.
/*
 * Copyright (c) 2024, dsock authors.
 */
package iolist

import "github.com/MarcusAsynchronous/dsock/cmn/cos"

// Segment is one element of the scatter/gather chain. Base == nil means a
// discard segment (receive-only): Len bytes are consumed and thrown away.
// For a real segment, Base's own length is authoritative and Len is unused.
type Segment struct {
	Base []byte
	Len  int
}

func (s Segment) size() int {
	if s.Base != nil {
		return len(s.Base)
	}
	return s.Len
}

func (s Segment) isDiscard() bool { return s.Base == nil }

// Buf wraps a real buffer as a segment.
func Buf(b []byte) Segment { return Segment{Base: b} }

// Discard returns a receive-only segment that skips n bytes.
func Discard(n int) Segment { return Segment{Len: n} }

// List is an ordered chain of segments.
type List struct {
	Segs []Segment
}

// Of builds a List from segments.
func Of(segs ...Segment) *List { return &List{Segs: segs} }

// One builds a single-segment List wrapping b — the common case.
func One(b []byte) *List { return &List{Segs: []Segment{Buf(b)}} }

// Len returns the sum of segment lengths.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, s := range l.Segs {
		n += s.size()
	}
	return n
}

// ValidateSend rejects discard segments, which are only meaningful on
// receive (spec §3 invariant).
func (l *List) ValidateSend() error {
	if l == nil {
		return nil
	}
	for _, s := range l.Segs {
		if s.isDiscard() && s.Len > 0 {
			return cos.ErrInvalid
		}
	}
	return nil
}

// Prepend returns a new List with seg first, followed by l's segments. l is
// not modified.
func Prepend(seg Segment, l *List) *List {
	var tail []Segment
	if l != nil {
		tail = l.Segs
	}
	segs := make([]Segment, 0, len(tail)+1)
	segs = append(segs, seg)
	segs = append(segs, tail...)
	return &List{Segs: segs}
}

// Append returns a new List with l's segments followed by seg. l is not
// modified.
func Append(l *List, seg Segment) *List {
	var head []Segment
	if l != nil {
		head = l.Segs
	}
	segs := make([]Segment, 0, len(head)+1)
	segs = append(segs, head...)
	segs = append(segs, seg)
	return &List{Segs: segs}
}

// Flatten copies every non-discard segment's bytes into one contiguous
// buffer. Used by framing layers that need a single []byte to hand to a
// single Write call (e.g. a small prepended header).
func (l *List) Flatten() []byte {
	if l == nil {
		return nil
	}
	buf := make([]byte, 0, l.Len())
	for _, s := range l.Segs {
		if !s.isDiscard() {
			buf = append(buf, s.Base...)
		}
	}
	return buf
}

// CopyFrom copies b into l's segments in order — discard segments consume
// their share of b without copying it anywhere — returning how many bytes
// were consumed. If b is shorter than l, copying stops at the end of b and
// the rest of l is left untouched; if b is longer, only l.Len() bytes are
// consumed. Used by message transports that already hold the whole
// datagram in memory (UDP) rather than pulling it from a stream.
func (l *List) CopyFrom(b []byte) (int, error) {
	consumed := 0
	for _, s := range l.Segs {
		if consumed == len(b) {
			break
		}
		sz := s.size()
		if sz == 0 {
			continue
		}
		if consumed+sz > len(b) {
			sz = len(b) - consumed
		}
		if !s.isDiscard() {
			copy(s.Base, b[consumed:consumed+sz])
		}
		consumed += sz
	}
	return consumed, nil
}

// Take returns a new List covering exactly the first n bytes of l,
// splitting the segment straddling the boundary if necessary. It is used
// when a caller's buffer has more capacity than an actual framed message
// (spec §4.4: "trimming the iolist in-place to size"); since this returns
// a fresh List built from slices of the same underlying arrays, no
// restoration step is required — the caller's original List is untouched.
func (l *List) Take(n int) (*List, error) {
	if n < 0 {
		return nil, cos.ErrInvalid
	}
	if l == nil {
		if n == 0 {
			return &List{}, nil
		}
		return nil, cos.ErrInvalid
	}
	out := make([]Segment, 0, len(l.Segs))
	remaining := n
	for _, s := range l.Segs {
		if remaining == 0 {
			break
		}
		sz := s.size()
		if sz <= remaining {
			out = append(out, s)
			remaining -= sz
			continue
		}
		// split
		if s.isDiscard() {
			out = append(out, Discard(remaining))
		} else {
			out = append(out, Buf(s.Base[:remaining]))
		}
		remaining = 0
	}
	if remaining != 0 {
		return nil, cos.ErrInvalid // l shorter than n
	}
	return &List{Segs: out}, nil
}
