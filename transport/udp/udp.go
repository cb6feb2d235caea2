// Package udp provides the UDP transport (spec §4.9): udp_socket,
// udp_send, udp_recv, exposing the message interface (msock.Conn). One
// msend == one datagram (spec §6 "UDP: native UDP datagrams").
//
// udp_send's fire-and-forget semantics on backpressure are intentional
// (spec §9 design note: the original "returns 0 on EAGAIN/EWOULDBLOCK,
// silently dropping datagrams" — documented as intentional, not a bug); we
// reproduce that by treating a would-block write as success.
/*
 * Copyright (c) 2024, dsock authors.
 */
package udp

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/transport/addr"
)

// Socket is the VFS block behind a UDP handle. remote, if set, fixes the
// peer so Send/Recv need not repeat it (a "connected" UDP socket); if nil,
// every call must address its own peer via the iolist-independent address
// parameter (spec §6 udp_send/udp_recv take an explicit addr).
type Socket struct {
	uc     *net.UDPConn
	remote *addr.Addr
}

var tagControl = hvfs.NewTag("udp-control")

// New is udp_socket(local, remote): local is the bind address (nil means
// any port), remote optionally fixes the peer.
func New(local, remote *addr.Addr) (hvfs.Handle, error) {
	var laddr *net.UDPAddr
	if local != nil {
		laddr = local.UDPAddr()
	}
	uc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return hvfs.Invalid, err
	}
	if remote != nil {
		if err := uc.Close(); err != nil {
			return hvfs.Invalid, err
		}
		uc2, err := net.DialUDP("udp", laddr, remote.UDPAddr())
		if err != nil {
			return hvfs.Invalid, err
		}
		uc = uc2
	}
	return hvfs.Make(&Socket{uc: uc, remote: remote}), nil
}

func (s *Socket) Query(tag *hvfs.Tag) any {
	switch tag {
	case hvfs.TagMessage:
		return s
	case tagControl:
		return s
	}
	return nil
}

func (s *Socket) Close() { _ = s.uc.Close() }

// LocalPort reports the bound local port, useful after New(local, nil)
// picked an ephemeral one.
func (s *Socket) LocalPort() int { return s.uc.LocalAddr().(*net.UDPAddr).Port }

// Done is not meaningful for a connectionless transport.
func (s *Socket) Done() error { return cos.ErrNotSupported }

// Msend sends exactly one datagram. A would-block write is swallowed as a
// successful, silently-dropped send (spec §9 design note).
func (s *Socket) Msend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := l.ValidateSend(); err != nil {
		return err
	}
	if err := s.uc.SetWriteDeadline(dl.Time()); err != nil {
		return err
	}
	buf := l.Flatten()
	var err error
	if s.remote != nil {
		_, err = s.uc.Write(buf)
	} else {
		return cos.ErrInvalid // caller must use SendTo for an unconnected socket
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil // fire-and-forget: would-block => dropped, not an error
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return cos.ErrConnReset
	}
	return nil
}

// SendTo is the explicit-peer variant of Msend for an unconnected socket.
func (s *Socket) SendTo(ctx context.Context, to *addr.Addr, l *iolist.List, dl hvfs.Deadline) error {
	if err := l.ValidateSend(); err != nil {
		return err
	}
	if err := s.uc.SetWriteDeadline(dl.Time()); err != nil {
		return err
	}
	buf := l.Flatten()
	_, err := s.uc.WriteToUDP(buf, to.UDPAddr())
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return cos.ErrConnReset
	}
	return nil
}

// Mrecv receives one whole datagram. If it doesn't fit in l, EMSGSIZE is
// returned (spec §4.3); the UDP layer never needs to "skip" the remainder
// since recvfrom always consumes the whole datagram in one call regardless
// of buffer size. A nil l receives and discards one datagram of any size.
// Unlike the framing layers, the socket keeps no poisoned state: after
// EMSGSIZE the next call receives the next datagram.
func (s *Socket) Mrecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, error) {
	want := l.Len()
	size := want + 1
	if l == nil {
		size = 1 << 16 // room for any UDP datagram
	}
	buf := make([]byte, size)
	if err := s.uc.SetReadDeadline(dl.Time()); err != nil {
		return -1, err
	}
	n, _, err := s.uc.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return -1, cos.ErrTimedOut
		}
		return -1, cos.ErrConnReset
	}
	if l != nil && n > want {
		return -1, cos.ErrMsgSize
	}
	if l != nil {
		if _, err := l.CopyFrom(buf[:n]); err != nil {
			return -1, err
		}
	}
	return n, nil
}

// RecvFrom is the explicit-peer variant of Mrecv for an unconnected socket.
func (s *Socket) RecvFrom(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, *addr.Addr, error) {
	want := l.Len()
	size := want + 1
	if l == nil {
		size = 1 << 16 // room for any UDP datagram
	}
	buf := make([]byte, size)
	if err := s.uc.SetReadDeadline(dl.Time()); err != nil {
		return -1, nil, err
	}
	n, from, err := s.uc.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return -1, nil, cos.ErrTimedOut
		}
		return -1, nil, cos.ErrConnReset
	}
	if l != nil && n > want {
		return -1, nil, cos.ErrMsgSize
	}
	if l != nil {
		if _, err := l.CopyFrom(buf[:n]); err != nil {
			return -1, nil, err
		}
	}
	return n, &addr.Addr{IP: from.IP, Port: from.Port}, nil
}
