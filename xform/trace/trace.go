// Package trace implements the tracing pass-through byte-stream layer
// (spec §4.6, "blog"/"btrace"): every bsend/brecv is hex-dumped to a
// diagnostic stream via cmn/nlog and then forwarded to the underlying
// handle unchanged. It exists to certify that layering is value-preserving:
// bsend(trace(x)) must be byte-identical to bsend(x).
//
// Grounded on spec.md §4.6 directly; no teacher file logs wire bytes, but
// cmn/nlog's leveled-logger calling convention (Infof with a %s-hexdump
// argument) is the teacher's idiom for diagnostic output.
/*
 * Copyright (c) 2024, dsock authors.
 */
package trace

import (
	"context"
	"encoding/hex"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/atomic"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/cmn/nlog"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

var tagControl = hvfs.NewTag("trace-control")

// Conn wraps a lower byte-stream Conn, logging every call's payload.
type Conn struct {
	lower hvfs.Handle
	bs    bsock.Conn
	label string

	sent atomic.Int64
	recv atomic.Int64
}

// Start wraps lower, tagging log lines with label (spec §4.6 has no naming
// requirement; a label makes interleaved multi-connection traces legible).
func Start(lower hvfs.Handle, label string) (hvfs.Handle, error) {
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
	return hvfs.Make(&Conn{lower: nh, bs: bs, label: label}), nil
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

// Bsend logs the payload before forwarding.
func (c *Conn) Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	buf := l.Flatten()
	nlog.Infof("%s send %d bytes: %s", c.label, len(buf), hex.EncodeToString(buf))
	if err := c.bs.Bsend(ctx, l, dl); err != nil {
		return err
	}
	c.sent.Add(int64(len(buf)))
	return nil
}

// Brecv forwards then logs what actually arrived.
func (c *Conn) Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := c.bs.Brecv(ctx, l, dl); err != nil {
		return err
	}
	buf := l.Flatten()
	nlog.Infof("%s recv %d bytes: %s", c.label, len(buf), hex.EncodeToString(buf))
	c.recv.Add(int64(len(buf)))
	return nil
}

// Counters returns cumulative bytes sent/received, queryable via tagControl
// for tests that certify layering is value-preserving.
func (c *Conn) Counters() (sent, recv int64) {
	return c.sent.Load(), c.recv.Load()
}
