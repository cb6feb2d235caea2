// Package unix provides the UNIX-domain stream transport (spec §4.9):
// unix_connect, unix_listen/unix_accept, unix_pair, unix_attach/unix_detach,
// exposing the byte-stream interface (bsock.Conn). Grounded the same way as
// transport/tcp (net.Conn + deadlines as the idiomatic non-blocking-fd
// reactor), with unix_pair grounded on syscall.Socketpair as used across
// the pack's raw-socket examples.
/*
 * Copyright (c) 2024, dsock authors.
 */
package unix

import (
	"context"
	"net"
	"os"
	"syscall"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cfg"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
)

type Listener struct {
	ln *net.UnixListener
}

// Listen is unix_listen(path, backlog). The socket file it creates at path
// is the caller's to remove (spec §6 "Persisted state").
func Listen(path string, backlog int) (*Listener, error) {
	if len(path) > 104 { // sizeof(sockaddr_un.sun_path) on common platforms
		return nil, cos.ErrNameTooLong
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = backlog
	return &Listener{ln: ln.(*net.UnixListener)}, nil
}

func (l *Listener) Accept(ctx context.Context, dl hvfs.Deadline) (hvfs.Handle, error) {
	if err := l.ln.SetDeadline(dl.Time()); err != nil {
		return hvfs.Invalid, err
	}
	c, err := l.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return hvfs.Invalid, cos.ErrTimedOut
		}
		return hvfs.Invalid, err
	}
	return hvfs.Make(newConn(c.(*net.UnixConn))), nil
}

func (l *Listener) Close() error { return l.ln.Close() }

// Connect is unix_connect(path, dl).
func Connect(ctx context.Context, path string, dl hvfs.Deadline) (hvfs.Handle, error) {
	if len(path) > 104 {
		return hvfs.Invalid, cos.ErrNameTooLong
	}
	if !dl.IsForever() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl.Time())
		defer cancel()
	}
	d := net.Dialer{}
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		if ctx.Err() != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return hvfs.Invalid, cos.ErrTimedOut
			}
			return hvfs.Invalid, cos.ErrCanceled
		}
		return hvfs.Invalid, err
	}
	return hvfs.Make(newConn(c.(*net.UnixConn))), nil
}

// Pair is unix_pair(out[2]): a connected pair of UNIX stream sockets with
// no filesystem path, grounded on syscall.Socketpair.
func Pair() (hvfs.Handle, hvfs.Handle, error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return hvfs.Invalid, hvfs.Invalid, err
	}
	c0, err := fdToConn(fds[0])
	if err != nil {
		return hvfs.Invalid, hvfs.Invalid, err
	}
	c1, err := fdToConn(fds[1])
	if err != nil {
		_ = c0.Close()
		return hvfs.Invalid, hvfs.Invalid, err
	}
	return hvfs.Make(newConn(c0)), hvfs.Make(newConn(c1)), nil
}

func fdToConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "dsock-unix-pair")
	nc, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		_ = nc.Close()
		return nil, cos.ErrInvalid
	}
	return uc, nil
}

type Conn struct {
	uc  *net.UnixConn
	eng *bsock.Engine
}

func newConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc, eng: bsock.NewEngine(uc, cfg.Default().RecvBufSize)}
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	if tag == hvfs.TagByteStream {
		return bsock.Conn(c.eng)
	}
	return nil
}

func (c *Conn) Close() { _ = c.uc.Close() }

func (c *Conn) Done() error { return c.uc.CloseWrite() }

// Detach/Attach mirror transport/tcp's (spec §4.9); duplicated rather than
// shared via a common helper package because the two wrap different
// net.Conn concrete types and sharing would need an interface no narrower
// than what each already is.
func (c *Conn) Detach() (uintptr, error) {
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	cerr := raw.Control(func(s uintptr) { fd = s })
	if cerr != nil {
		return 0, cerr
	}
	dup, err := syscall.Dup(int(fd))
	if err != nil {
		return 0, err
	}
	_ = c.uc.Close()
	return uintptr(dup), nil
}

func Attach(fd uintptr) (hvfs.Handle, error) {
	f := os.NewFile(fd, "dsock-unix")
	nc, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return hvfs.Invalid, err
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		_ = nc.Close()
		return hvfs.Invalid, cos.ErrInvalid
	}
	return hvfs.Make(newConn(uc)), nil
}
