// Package crlf implements CRLF-delimited framing (spec §4.5): messages are
// separated by "\r\n"; an empty line (a terminator with no preceding
// payload byte) marks graceful termination. In-payload "\r\n" is illegal
// and poisons the send half with EINVAL.
//
// Grounded on original_source/crlf.c for the wire format and state machine,
// and on framing/pfx for the shared term.State handshake shape (both
// layers need byte-identical stop semantics). Per spec §9's noted source
// bug (the original receiver checks a segment's bound only after writing
// into it), Mrecv here checks the caller's capacity before storing each
// payload byte. Msend validates the whole payload for an embedded CRLF
// before queuing anything downstream.
/*
 * Copyright (c) 2024, dsock authors.
 */
package crlf

import (
	"context"
	"sync"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cfg"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/framing/term"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/msock"
)

var tagControl = hvfs.NewTag("crlf-control")

const (
	cr = '\r'
	lf = '\n'
)

// Conn is the VFS block behind a CRLF handle.
type Conn struct {
	lower   hvfs.Handle
	lowerBS bsock.Conn
	term    term.State

	sendMu sync.Mutex

	stopped bool
}

// Start is crlf_start(lower) (spec §4.5).
func Start(lower hvfs.Handle) (hvfs.Handle, error) {
	v, err := hvfs.Query(lower, hvfs.TagByteStream)
	if err != nil {
		return hvfs.Invalid, err
	}
	bs, ok := v.(bsock.Conn)
	if !ok {
		return hvfs.Invalid, cos.ErrNotSupported
	}
	nh, err := hvfs.Take(lower)
	if err != nil {
		return hvfs.Invalid, err
	}
	return hvfs.Make(&Conn{lower: nh, lowerBS: bs}), nil
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	switch tag {
	case hvfs.TagMessage:
		return msock.Conn(c)
	case tagControl:
		return c
	}
	return nil
}

func (c *Conn) Close() {
	if !c.stopped {
		hvfs.Close(c.lower)
	}
}

// Done sends the empty-line terminator, if not already sent.
func (c *Conn) Done() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.term.IsOutDone() {
		return nil
	}
	if err := c.term.CheckSend(); err != nil {
		return err
	}
	sep := [2]byte{cr, lf}
	if err := c.lowerBS.Bsend(context.Background(), iolist.One(sep[:]), hvfs.Forever); err != nil {
		c.term.PoisonOut()
		return err
	}
	c.term.MarkOutDone()
	return nil
}

// hasEmbeddedCRLF reports whether any two consecutive bytes across l's
// non-discard segments form "\r\n". The whole payload is scanned up front,
// before anything is queued for send, so a rejected send leaves no bytes in
// flight.
func hasEmbeddedCRLF(l *iolist.List) bool {
	if l == nil {
		return false
	}
	prev := byte(0)
	havePrev := false
	for _, s := range l.Segs {
		if s.Base == nil {
			havePrev = false
			continue
		}
		for _, b := range s.Base {
			if havePrev && prev == cr && b == lf {
				return true
			}
			prev = b
			havePrev = true
		}
	}
	return false
}

// Msend validates the full payload for an embedded separator, then sends
// payload followed by a synthetic "\r\n" trailer in one underlying Bsend
// (spec §4.5: "the append is undone on return").
func (c *Conn) Msend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := c.term.CheckSend(); err != nil {
		return err
	}
	if err := l.ValidateSend(); err != nil {
		c.term.PoisonOut()
		return err
	}
	if hasEmbeddedCRLF(l) {
		c.term.PoisonOut()
		return cos.ErrInvalid
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	sep := [2]byte{cr, lf}
	full := iolist.Append(l, iolist.Buf(sep[:]))
	if err := c.lowerBS.Bsend(ctx, full, dl); err != nil {
		c.term.PoisonOut()
		return err
	}
	return nil
}

// Mrecv reads one byte at a time from the underlying stream, caching the
// queried byte-stream handle rather than re-querying per byte, until it
// observes "\r\n" (spec §4.5). Payload bytes accumulate in a scratch
// buffer and are copied into l once the terminator is found, so an
// over-length message is detected and poisoned without needing to know the
// final size up front.
func (c *Conn) Mrecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, error) {
	if err := c.term.CheckRecv(); err != nil {
		return -1, err
	}

	have := -1 // unbounded when l == nil (pure discard)
	if l != nil {
		have = l.Len()
	}

	var one [1]byte
	var prev byte
	havePrev := false
	payload := make([]byte, 0, cfg.Default().CrlfDefaultLineBuf)

	for {
		if err := c.lowerBS.Brecv(ctx, iolist.One(one[:]), dl); err != nil {
			c.term.PoisonIn()
			return -1, err
		}
		cur := one[0]
		if havePrev && prev == cr && cur == lf {
			if len(payload) == 0 {
				c.term.MarkInDone()
				return -1, cos.ErrPipe
			}
			if l != nil {
				if _, err := l.CopyFrom(payload); err != nil {
					c.term.PoisonIn()
					return -1, err
				}
			}
			return len(payload), nil
		}
		if havePrev {
			if have >= 0 && len(payload) >= have {
				c.term.PoisonIn()
				return -1, cos.ErrMsgSize
			}
			payload = append(payload, prev)
		}
		prev = cur
		havePrev = true
	}
}

// Stop is crlf_stop(h, deadline): symmetric to pfx.Stop but keyed on the
// empty-line terminator (spec §4.5).
func Stop(ctx context.Context, h hvfs.Handle, dl hvfs.Deadline) (hvfs.Handle, error) {
	v, err := hvfs.Query(h, tagControl)
	if err != nil {
		hvfs.Close(h)
		return hvfs.Invalid, err
	}
	c := v.(*Conn)
	lower, err := c.stop(ctx, dl)
	if err != nil {
		hvfs.Close(h)
		return hvfs.Invalid, err
	}
	hvfs.Close(h)
	return lower, nil
}

func (c *Conn) stop(ctx context.Context, dl hvfs.Deadline) (hvfs.Handle, error) {
	if !c.term.IsOutDone() {
		if err := c.Done(); err != nil {
			return hvfs.Invalid, err
		}
	}
	for !c.term.IsInDone() {
		if _, err := c.Mrecv(ctx, nil, dl); err != nil {
			if cos.IsPipe(err) {
				break
			}
			return hvfs.Invalid, err
		}
	}
	nh, err := hvfs.Dup(c.lower)
	if err != nil {
		return hvfs.Invalid, err
	}
	hvfs.Close(c.lower)
	c.stopped = true
	return nh, nil
}
