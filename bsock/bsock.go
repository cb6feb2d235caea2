// Package bsock implements the byte-stream capability interface (BVFS,
// spec §4.2): bsend/brecv over an ordered, reliable, bidirectional byte
// channel, plus the shared non-blocking I/O core (fixed-size receive
// buffer, deadline-driven wait, partial-operation semantics) that every
// byte-stream-backed transport and pass-through layer builds on.
//
// Grounded on spec.md §4.2 and §5; the suspend-until-readiness pattern is
// the Go-idiomatic substitution for the C original's wait_readable/
// wait_writable reactor: a blocking Read/Write on a net.Conn *is* the
// suspension point, serviced by the runtime's netpoller instead of a
// hand-rolled epoll loop (see transport/tcp grounding notes and
// DESIGN.md's Open Question on this).
/*
 * Copyright (c) 2024, dsock authors.
 */
package bsock

import (
	"context"
	"io"
	"time"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

// Conn is the BVFS capability block returned by hquery(h, hvfs.TagByteStream).
type Conn interface {
	Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error
	Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error
}

// RawIO is what a concrete transport (TCP/UNIX) or a lower layer must
// provide for Engine to drive: a deadline-capable byte stream. net.Conn
// satisfies this directly.
type RawIO interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Engine implements Conn over a RawIO, with a fixed-size receive buffer and
// sticky per-direction poisoning (spec §3 invariants). It is meant to be
// embedded by transports; pass-through xform layers instead wrap another
// Conn directly and don't need an Engine of their own.
type Engine struct {
	raw     RawIO
	recvBuf []byte
	rpos    int
	rfill   int

	outErr poison
	inErr  poison
}

type poison struct {
	set bool
}

func NewEngine(raw RawIO, recvBufSize int) *Engine {
	if recvBufSize <= 0 {
		recvBufSize = 4096
	}
	return &Engine{raw: raw, recvBuf: make([]byte, recvBufSize)}
}

// Bsend sends all bytes in l or fails; partial sends are never visible to
// the caller (spec §4.2).
func (e *Engine) Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if e.outErr.set {
		return cos.ErrConnReset
	}
	if err := l.ValidateSend(); err != nil {
		e.outErr.set = true
		return err
	}
	if err := e.writeAll(ctx, l, dl); err != nil {
		e.outErr.set = true
		return err
	}
	return nil
}

func (e *Engine) writeAll(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	w := arm(ctx, dl, e.raw.SetWriteDeadline)
	defer w.disarm()

	for _, s := range l.Segs {
		b := s.Base
		for len(b) > 0 {
			n, err := e.raw.Write(b)
			b = b[n:]
			if err != nil {
				return w.mapErr(err)
			}
		}
	}
	return nil
}

// Brecv receives exactly the sum of segment lengths; segments with a nil
// base discard that many bytes (spec §4.2).
func (e *Engine) Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if e.inErr.set {
		return cos.ErrConnReset
	}
	n, err := e.readAll(ctx, l, dl)
	if err != nil {
		e.inErr.set = true
		if err == io.EOF {
			if n == 0 {
				return cos.ErrPipe
			}
			return cos.ErrConnReset
		}
		return err
	}
	return nil
}

func (e *Engine) readAll(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (total int, err error) {
	r := arm(ctx, dl, e.raw.SetReadDeadline)
	defer r.disarm()

	for _, s := range l.Segs {
		if s.Base != nil {
			n, err := e.fill(r, s.Base)
			total += n
			if err != nil {
				return total, err
			}
			continue
		}
		n, err := e.discard(r, s.Len)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// fill satisfies a single real segment from the staging buffer first,
// falling back to a direct read into the caller's memory once the buffer
// is drained and the remaining request is large (spec §4.2: "small reads
// are satisfied from the buffer; large reads bypass the buffer").
func (e *Engine) fill(r *waiter, dst []byte) (n int, err error) {
	for len(dst) > 0 {
		if e.rpos < e.rfill {
			c := copy(dst, e.recvBuf[e.rpos:e.rfill])
			e.rpos += c
			dst = dst[c:]
			n += c
			continue
		}
		if len(dst) >= len(e.recvBuf) {
			// large read: go straight into caller memory
			k, rerr := e.raw.Read(dst)
			n += k
			dst = dst[k:]
			if rerr != nil {
				return n, r.mapReadErr(rerr)
			}
			continue
		}
		// refill the staging buffer
		k, rerr := e.raw.Read(e.recvBuf)
		e.rpos, e.rfill = 0, k
		if rerr != nil && k == 0 {
			return n, r.mapReadErr(rerr)
		}
	}
	return n, nil
}

func (e *Engine) discard(r *waiter, want int) (n int, err error) {
	for want > 0 {
		if e.rpos < e.rfill {
			c := e.rfill - e.rpos
			if c > want {
				c = want
			}
			e.rpos += c
			want -= c
			n += c
			continue
		}
		if want >= len(e.recvBuf) {
			k, rerr := e.raw.Read(e.recvBuf)
			n += k
			want -= k
			if rerr != nil {
				return n, r.mapReadErr(rerr)
			}
			continue
		}
		k, rerr := e.raw.Read(e.recvBuf)
		e.rpos, e.rfill = 0, k
		if rerr != nil && k == 0 {
			return n, r.mapReadErr(rerr)
		}
	}
	return n, nil
}
