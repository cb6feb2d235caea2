// Package throttle implements the byte-stream and message throttling
// pass-through layers (spec §4.7): each direction is governed by its own
// quota, and an operation that finds the quota exhausted suspends the
// caller until enough quota is available or the deadline, whichever comes
// first.
//
// Quotas are golang.org/x/time/rate.Limiter token buckets, refilled
// continuously (WaitN blocks until N tokens are available or its context is
// done). There is no caller-supplied recompute interval and no periodic
// tick: the only knobs are the per-direction rate and the burst size.
// rate.Limiter is in the teacher's dependency neighborhood (aistore's
// ais/backend throttles egress this same way), so we build directly on it
// rather than hand-rolling a ticker loop.
/*
 * Copyright (c) 2024, dsock authors.
 */
package throttle

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/msock"
)

var tagControl = hvfs.NewTag("throttle-control")

// Limits configures the two independent per-direction quotas (spec §4.7:
// "bytes/s for byte-stream variant, msgs/s for message variant"). A zero
// Rate leaves that direction unthrottled.
type Limits struct {
	SendRate float64 // units/s, 0 = unlimited
	RecvRate float64
	Burst    int // defaults to max(1, rate) if zero
}

func newLimiter(ratePerSec float64, burst int) *rate.Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// Conn throttles a byte-stream Conn by bytes/s in each direction.
type Conn struct {
	lower hvfs.Handle
	bs    bsock.Conn
	send  *rate.Limiter
	recv  *rate.Limiter
}

// Start wraps lower's byte-stream interface with send/recv byte quotas.
func Start(lower hvfs.Handle, lim Limits) (hvfs.Handle, error) {
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
	c := &Conn{
		lower: nh,
		bs:    bs,
		send:  newLimiter(lim.SendRate, lim.Burst),
		recv:  newLimiter(lim.RecvRate, lim.Burst),
	}
	return hvfs.Make(c), nil
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	switch tag {
	case hvfs.TagByteStream:
		return bsock.Conn(c)
	case tagControl:
		return c
	}
	return nil
}

func (c *Conn) Close() { hvfs.Close(c.lower) }
func (c *Conn) Done() error { return hvfs.Done(c.lower) }

// wait blocks until n tokens are available from lim, the deadline elapses,
// or ctx is canceled — whichever comes first (spec §4.7). When the limiter
// can tell up front that the tokens would only arrive after the deadline,
// it fails at once rather than sleeping, and that too is ETIMEDOUT.
func wait(ctx context.Context, lim *rate.Limiter, n int, dl hvfs.Deadline) error {
	if lim == nil || n == 0 {
		return nil
	}
	wctx := ctx
	var cancel context.CancelFunc
	if !dl.IsForever() {
		wctx, cancel = context.WithDeadline(ctx, dl.Time())
		defer cancel()
	}
	if err := lim.WaitN(wctx, n); err != nil {
		if ctx.Err() == nil && !dl.IsForever() {
			return cos.ErrTimedOut
		}
		return cos.ErrCanceled
	}
	return nil
}

func (c *Conn) Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := wait(ctx, c.send, l.Len(), dl); err != nil {
		return err
	}
	return c.bs.Bsend(ctx, l, dl)
}

func (c *Conn) Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := wait(ctx, c.recv, l.Len(), dl); err != nil {
		return err
	}
	return c.bs.Brecv(ctx, l, dl)
}

// MsgConn throttles a message Conn by msgs/s in each direction.
type MsgConn struct {
	lower hvfs.Handle
	ms    msock.Conn
	send  *rate.Limiter
	recv  *rate.Limiter
}

// StartMsg wraps lower's message interface with send/recv per-message
// quotas (spec §4.7 message variant).
func StartMsg(lower hvfs.Handle, lim Limits) (hvfs.Handle, error) {
	v, err := hvfs.Query(lower, hvfs.TagMessage)
	if err != nil {
		return hvfs.Invalid, err
	}
	ms, ok := v.(msock.Conn)
	if !ok {
		return hvfs.Invalid, cos.ErrNotSupported
	}
	nh, err := hvfs.Take(lower)
	if err != nil {
		return hvfs.Invalid, err
	}
	c := &MsgConn{
		lower: nh,
		ms:    ms,
		send:  newLimiter(lim.SendRate, lim.Burst),
		recv:  newLimiter(lim.RecvRate, lim.Burst),
	}
	return hvfs.Make(c), nil
}

func (c *MsgConn) Query(tag *hvfs.Tag) any {
	switch tag {
	case hvfs.TagMessage:
		return msock.Conn(c)
	case tagControl:
		return c
	}
	return nil
}

func (c *MsgConn) Close() { hvfs.Close(c.lower) }
func (c *MsgConn) Done() error { return hvfs.Done(c.lower) }

func (c *MsgConn) Msend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := wait(ctx, c.send, 1, dl); err != nil {
		return err
	}
	return c.ms.Msend(ctx, l, dl)
}

func (c *MsgConn) Mrecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, error) {
	if err := wait(ctx, c.recv, 1, dl); err != nil {
		return -1, err
	}
	return c.ms.Mrecv(ctx, l, dl)
}
