// Package inproctest provides an in-memory, connected byte-stream pair for
// tests that exercise layering (framing/xform) without an OS socket.
//
// Grounded on original_source/tests/inproc.c's inprocpair helper, which the
// original test suite uses for exactly this purpose: a zero-syscall
// duplex pipe to ping-pong framed messages across in one process. Built on
// net.Pipe, which is the standard library's in-memory net.Conn and already
// satisfies bsock.RawIO (it supports SetReadDeadline/SetWriteDeadline).
/*
 * Copyright (c) 2024, dsock authors.
 */
package inproctest

import (
	"net"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cfg"
	"github.com/MarcusAsynchronous/dsock/hvfs"
)

// conn is the VFS block behind each end of an in-process pair.
type conn struct {
	nc  net.Conn
	eng *bsock.Engine
}

func (c *conn) Query(tag *hvfs.Tag) any {
	if tag == hvfs.TagByteStream {
		return bsock.Conn(c.eng)
	}
	return nil
}

func (c *conn) Close() { _ = c.nc.Close() }

// Done on a net.Pipe conn has no half-close primitive; emulate EOF-on-read
// for the peer by fully closing instead (tests relying on hdone followed by
// continued sends on the same handle don't apply to this connectionless
// helper — use a real transport for detach/half-close scenarios).
func (c *conn) Done() error { return c.nc.Close() }

// Pair returns two connected byte-stream handles; bytes written to one are
// read from the other, and vice versa.
func Pair() (a, b hvfs.Handle) {
	na, nb := net.Pipe()
	bufSize := cfg.Default().RecvBufSize
	ca := &conn{nc: na, eng: bsock.NewEngine(na, bufSize)}
	cb := &conn{nc: nb, eng: bsock.NewEngine(nb, bufSize)}
	return hvfs.Make(ca), hvfs.Make(cb)
}
