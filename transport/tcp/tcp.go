// Package tcp provides the TCP transport (spec §4.9): tcp_connect,
// tcp_listen/tcp_accept, tcp_attach/tcp_detach, exposing the byte-stream
// interface (bsock.Conn).
//
// Socket tuning is grounded on the socket-option idiom in
// other_examples/…mdlayher-socket-conn.go and
// other_examples/…xtaci-tcpraw-tcp_linux.go (golang.org/x/sys/unix,
// SetsockoptInt via syscall.RawConn.Control). The connect/accept/send/recv
// loop itself is net.Conn plus deadlines: Go's runtime netpoller is the
// idiomatic substitute for the hand-rolled non-blocking-fd-plus-reactor
// core described in spec §4.9/§9 (see DESIGN.md).
/*
 * Copyright (c) 2024, dsock authors.
 */
package tcp

import (
	"context"
	"net"
	"syscall"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cfg"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/transport/addr"

	"golang.org/x/sys/unix"
)

// Listener wraps a *net.TCPListener; tcp_accept is the only operation it
// supports directly (no HVFS handle of its own is required for listeners
// in this API shape — only connections are handles).
type Listener struct {
	ln *net.TCPListener
}

// Listen is tcp_listen(addr, backlog) (spec §6). backlog is advisory on
// platforms where the stdlib doesn't expose it directly; we still apply
// SO_REUSEADDR, matching "Socket tuning applied on every accepted/created
// FD" (spec §4.9).
func Listen(a *addr.Addr, backlog int) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return tune(c)
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", a.TCPAddr().String())
	if err != nil {
		return nil, err
	}
	_ = backlog // accepted by the OS listen(2) backend underneath net.Listen
	return &Listener{ln: ln.(*net.TCPListener)}, nil
}

// Accept is tcp_accept(lst, out_addr, dl): waits for readability up to
// deadline, then returns a connected handle (spec §4.9).
func (l *Listener) Accept(ctx context.Context, dl hvfs.Deadline) (hvfs.Handle, *addr.Addr, error) {
	if err := l.ln.SetDeadline(dl.Time()); err != nil {
		return hvfs.Invalid, nil, err
	}
	c, err := l.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return hvfs.Invalid, nil, cos.ErrTimedOut
		}
		return hvfs.Invalid, nil, err
	}
	tc := c.(*net.TCPConn)
	remote := tc.RemoteAddr().(*net.TCPAddr)
	h := hvfs.Make(newConn(tc))
	return h, &addr.Addr{IP: remote.IP, Port: remote.Port}, nil
}

func (l *Listener) Close() error { return l.ln.Close() }

// Port reports the bound local port, useful after Listen(addr, 0) picked an
// ephemeral one.
func (l *Listener) Port() int { return l.ln.Addr().(*net.TCPAddr).Port }

// TagControl exposes the tcp-specific capability (Detach) queryable via
// hvfs.Query, mirroring how bsock/msock capabilities are looked up.
func TagControl() *hvfs.Tag { return tagControl }

// Connect is tcp_connect(addr, dl): connect(2), waiting for writability up
// to deadline on EINPROGRESS (spec §4.9). net.DialContext already performs
// exactly that non-blocking-connect-then-wait-writable sequence internally.
func Connect(ctx context.Context, a *addr.Addr, dl hvfs.Deadline) (hvfs.Handle, error) {
	if !dl.IsForever() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl.Time())
		defer cancel()
	}
	d := net.Dialer{
		Control: func(_, _ string, c syscall.RawConn) error {
			return tune(c)
		},
	}
	c, err := d.DialContext(ctx, "tcp", a.TCPAddr().String())
	if err != nil {
		if ctx.Err() != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return hvfs.Invalid, cos.ErrTimedOut
			}
			return hvfs.Invalid, cos.ErrCanceled
		}
		return hvfs.Invalid, err
	}
	return hvfs.Make(newConn(c.(*net.TCPConn))), nil
}

// Conn is the VFS block behind a TCP byte-stream handle.
type Conn struct {
	tc  *net.TCPConn
	eng *bsock.Engine
}

var tagControl = hvfs.NewTag("tcp-control")

func newConn(tc *net.TCPConn) *Conn {
	_ = tc.SetNoDelay(true)
	return &Conn{tc: tc, eng: bsock.NewEngine(tc, cfg.Default().RecvBufSize)}
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	switch tag {
	case hvfs.TagByteStream:
		return bsock.Conn(c.eng)
	case tagControl:
		return c
	}
	return nil
}

func (c *Conn) Close() { _ = c.tc.Close() }

// Done performs a TCP half-close (shutdown(SHUT_WR)); this is the
// transport-level meaning of hdone when no framing layer is present to
// define its own terminator.
func (c *Conn) Done() error { return c.tc.CloseWrite() }

// Detach yields back the bare file descriptor; the handle is consumed
// (spec §4.9 detach/attach).
func (c *Conn) Detach() (uintptr, error) {
	raw, err := c.tc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	cerr := raw.Control(func(s uintptr) { fd = s })
	if cerr != nil {
		return 0, cerr
	}
	dup, err := dupFD(fd)
	if err != nil {
		return 0, err
	}
	_ = c.tc.Close()
	return dup, nil
}

// Attach is the reverse of Detach: wraps a bare, already-connected TCP file
// descriptor back into a handle.
func Attach(fd uintptr) (hvfs.Handle, error) {
	f := fdFile(fd)
	nc, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return hvfs.Invalid, err
	}
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		_ = nc.Close()
		return hvfs.Invalid, cos.ErrInvalid
	}
	return hvfs.Make(newConn(tc)), nil
}

func tune(c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
}
