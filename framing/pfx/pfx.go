package pfx

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/framing/term"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/msock"
)

var tagControl = hvfs.NewTag("pfx-control")

// Conn is the VFS block behind a PFX handle: exposes msock.Conn (message
// interface) and, via tagControl, itself (the layer-private control
// interface Stop uses to retrieve the underlying handle).
type Conn struct {
	lower   hvfs.Handle
	lowerBS bsock.Conn
	term    term.State

	sendMu  sync.Mutex
	sendBuf [headerSize]byte

	stopped bool // true once Stop has taken over closing/returning `lower`
}

// Start is pfx_start(lower) (spec §4.4): verifies lower exposes the
// byte-stream interface, takes ownership of it (duplicate-then-close), and
// returns a new handle exposing the message interface.
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
	c := &Conn{lower: nh, lowerBS: bs}
	return hvfs.Make(c), nil
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

// Close recursively closes the owned lower handle, unless Stop already
// took over its lifecycle (spec §3 "hclose... recursive close of owned
// children").
func (c *Conn) Close() {
	if !c.stopped {
		hvfs.Close(c.lower)
	}
}

// Done sends the PFX terminator, if not already sent (spec §4.4 state
// machine: "IDLE --hdone--> OUT_DONE").
func (c *Conn) Done() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.term.IsOutDone() {
		return nil
	}
	if err := c.term.CheckSend(); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(c.sendBuf[:], terminatorSize)
	if err := c.lowerBS.Bsend(context.Background(), iolist.One(c.sendBuf[:]), hvfs.Forever); err != nil {
		c.term.PoisonOut()
		return err
	}
	c.term.MarkOutDone()
	return nil
}

// Msend frames and sends one message (spec §4.4): prepend an 8-byte header
// segment and issue a single underlying Bsend.
func (c *Conn) Msend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := c.term.CheckSend(); err != nil {
		return err
	}
	if err := l.ValidateSend(); err != nil {
		c.term.PoisonOut()
		return err
	}
	size := uint64(l.Len())
	if size == terminatorSize {
		c.term.PoisonOut()
		return cos.ErrMsgSize
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	binary.BigEndian.PutUint64(c.sendBuf[:], size)
	full := iolist.Prepend(iolist.Buf(c.sendBuf[:]), l)
	if err := c.lowerBS.Bsend(ctx, full, dl); err != nil {
		c.term.PoisonOut()
		return err
	}
	return nil
}

// Mrecv reads an 8-byte header, decodes the size, and reads exactly that
// many bytes into l (trimmed to size, spec §4.4). A nil l frames/consumes
// the message but discards the payload (spec §4.3).
func (c *Conn) Mrecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, error) {
	if err := c.term.CheckRecv(); err != nil {
		return -1, err
	}
	var hdr [headerSize]byte
	if err := c.lowerBS.Brecv(ctx, iolist.One(hdr[:]), dl); err != nil {
		c.term.PoisonIn()
		return -1, err
	}
	size := binary.BigEndian.Uint64(hdr[:])
	if size == terminatorSize {
		c.term.MarkInDone()
		return -1, cos.ErrPipe
	}
	n := int(size)
	if n < 0 {
		// size doesn't fit a platform int (>= 2^63 payload); can never be
		// satisfied by any caller buffer.
		c.term.PoisonIn()
		return -1, cos.ErrMsgSize
	}

	if l == nil {
		if n > 0 {
			if err := c.lowerBS.Brecv(ctx, iolist.Of(iolist.Discard(n)), dl); err != nil {
				c.term.PoisonIn()
				return -1, err
			}
		}
		return n, nil
	}

	have := l.Len()
	if n > have {
		// spec §4.3: oversize poisons recv; remaining bytes are left
		// undefined, we must not attempt to skip them.
		c.term.PoisonIn()
		return -1, cos.ErrMsgSize
	}
	sub, err := l.Take(n)
	if err != nil {
		c.term.PoisonIn()
		return -1, err
	}
	if err := c.lowerBS.Brecv(ctx, sub, dl); err != nil {
		c.term.PoisonIn()
		return -1, err
	}
	return n, nil
}

// Stop is pfx_stop(h, deadline) (spec §4.4): sends the terminator if not
// already sent, drains incoming messages until the peer's terminator is
// observed, then returns the wrapped underlying handle. On any error the
// layer is forcibly closed and an invalid handle returned.
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
