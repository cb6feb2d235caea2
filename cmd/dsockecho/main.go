// Command dsockecho is a tiny demo binary composing a TCP transport with
// PFX framing to exercise the stack end to end (spec §8 scenarios 1/2): in
// server mode it listens, frames the connection with PFX, reads messages
// until the peer's terminator, echoes each one back, then stops; in client
// mode it connects, sends a few messages one at a time, printing each echo
// as it comes back, then calls pfx_stop.
/*
 * Copyright (c) 2024, dsock authors.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/MarcusAsynchronous/dsock/cmn/nlog"
	"github.com/MarcusAsynchronous/dsock/framing/pfx"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
	"github.com/MarcusAsynchronous/dsock/msock"
	"github.com/MarcusAsynchronous/dsock/transport/addr"
	"github.com/MarcusAsynchronous/dsock/transport/tcp"
)

var (
	mode = flag.String("mode", "", "server or client")
	host = flag.String("addr", "127.0.0.1", "address to bind/connect")
	port = flag.Int("port", 5555, "port to bind/connect")
)

func main() {
	flag.Parse()
	switch *mode {
	case "server":
		if err := runServer(); err != nil {
			nlog.Errorf("server failed: %v", err)
			os.Exit(1)
		}
	case "client":
		if err := runClient(); err != nil {
			nlog.Errorf("client failed: %v", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: dsockecho -mode=server|client [-addr=127.0.0.1] [-port=5555]")
		os.Exit(2)
	}
}

func runServer() error {
	a, err := addr.Local(*host, *port, addr.ModeIPv4)
	if err != nil {
		return err
	}
	ln, err := tcp.Listen(a, 16)
	if err != nil {
		return err
	}
	nlog.Infof("listening on %s:%d", *host, *port)

	ctx := context.Background()
	h, _, err := ln.Accept(ctx, hvfs.Forever)
	if err != nil {
		return err
	}
	ph, err := pfx.Start(h)
	if err != nil {
		hvfs.Close(h)
		return err
	}
	mv, err := hvfs.Query(ph, hvfs.TagMessage)
	if err != nil {
		hvfs.Close(ph)
		return err
	}
	m := mv.(msock.Conn)

	buf := make([]byte, 4096)
	for {
		l := iolist.One(buf)
		n, err := m.Mrecv(ctx, l, hvfs.Forever)
		if err != nil {
			break
		}
		nlog.Infof("server recv: %q", buf[:n])
		if err := m.Msend(ctx, iolist.One(buf[:n]), hvfs.Forever); err != nil {
			break
		}
	}
	_, err = pfx.Stop(ctx, ph, hvfs.Forever)
	return err
}

func runClient() error {
	a, err := addr.Local(*host, *port, addr.ModeIPv4)
	if err != nil {
		return err
	}
	ctx := context.Background()
	h, err := tcp.Connect(ctx, a, hvfs.Forever)
	if err != nil {
		return err
	}
	ph, err := pfx.Start(h)
	if err != nil {
		hvfs.Close(h)
		return err
	}
	mv, err := hvfs.Query(ph, hvfs.TagMessage)
	if err != nil {
		hvfs.Close(ph)
		return err
	}
	m := mv.(msock.Conn)

	for _, msg := range []string{"ABC", "456", "Red", "Blue"} {
		if err := m.Msend(ctx, iolist.One([]byte(msg)), hvfs.Forever); err != nil {
			return err
		}
		buf := make([]byte, 4096)
		n, err := m.Mrecv(ctx, iolist.One(buf), hvfs.Forever)
		if err != nil {
			return err
		}
		nlog.Infof("client got: %q", buf[:n])
	}
	_, err = pfx.Stop(ctx, ph, hvfs.Forever)
	return err
}
