// Package nagle implements the outbound batching byte-stream layer (spec
// §4.8): writes accumulate into a buffer up to batch bytes or until
// interval has elapsed since the first byte entered the current batch,
// whichever comes first; hdone and hclose flush unconditionally.
//
// Grounded on spec.md §4.8 directly; the timer-vs-threshold flush shape
// follows the teacher's transport/collect.go collector loop (a pending
// buffer plus a single timer, armed when the first byte of a batch arrives
// and not reset by later arrivals).
/*
 * Copyright (c) 2024, dsock authors.
 */
package nagle

import (
	"context"
	"sync"
	"time"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cfg"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

// Conn batches outbound bytes before forwarding to a lower byte-stream Conn.
// Receive is a pure pass-through: batching only ever applies to the send
// direction (spec §4.8 names only "outbound writes").
type Conn struct {
	lower hvfs.Handle
	bs    bsock.Conn

	batch    int
	interval time.Duration

	mu      sync.Mutex
	pending []byte
	timer   *time.Timer
}

// Start wraps lower with batch-byte / interval-ms Nagle coalescing. A
// non-positive batch or interval falls back to cfg.Default()'s NagleBatch /
// NagleInterval rather than to an arbitrary constant here.
func Start(lower hvfs.Handle, batch int, interval time.Duration) (hvfs.Handle, error) {
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
	if batch <= 0 {
		batch = cfg.Default().NagleBatch
	}
	if interval <= 0 {
		interval = cfg.Default().NagleInterval
	}
	return hvfs.Make(&Conn{lower: nh, bs: bs, batch: batch, interval: interval}), nil
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	if tag == hvfs.TagByteStream {
		return bsock.Conn(c)
	}
	return nil
}

// Close flushes any pending bytes before tearing down the lower handle
// (spec §4.8: "hclose... flush unconditionally").
func (c *Conn) Close() {
	_ = c.flushLocked(context.Background(), hvfs.Forever)
	hvfs.Close(c.lower)
}

// Done flushes, then forwards the half-close signal (spec §4.8: "hdone...
// flush unconditionally").
func (c *Conn) Done() error {
	if err := c.flushLocked(context.Background(), hvfs.Forever); err != nil {
		return err
	}
	return hvfs.Done(c.lower)
}

// Bsend appends to the pending batch, flushing immediately once it reaches
// c.batch bytes. When these are the batch's first bytes it arms the
// interval timer, so the batch flushes on its own once interval has
// elapsed since the first byte queued.
func (c *Conn) Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	buf := l.Flatten()

	c.mu.Lock()
	defer c.mu.Unlock()

	first := len(c.pending) == 0
	c.pending = append(c.pending, buf...)
	if first && c.interval > 0 {
		c.armTimerLocked()
	}
	if len(c.pending) >= c.batch {
		return c.flushLockedNoLock(ctx, dl)
	}
	return nil
}

func (c *Conn) armTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = c.flushLockedNoLock(context.Background(), hvfs.Forever)
	})
}

// flushLocked acquires the lock and flushes; used by Close/Done, which are
// not already holding c.mu.
func (c *Conn) flushLocked(ctx context.Context, dl hvfs.Deadline) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLockedNoLock(ctx, dl)
}

// flushLockedNoLock does the actual flush; caller must already hold c.mu.
func (c *Conn) flushLockedNoLock(ctx context.Context, dl hvfs.Deadline) error {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pending) == 0 {
		return nil
	}
	buf := c.pending
	c.pending = nil
	return c.bs.Bsend(ctx, iolist.One(buf), dl)
}

// Brecv passes straight through; batching never applies to receive.
func (c *Conn) Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	return c.bs.Brecv(ctx, l, dl)
}
