// Package msock defines the message capability interface (MVFS, spec
// §4.3): msend/mrecv over an ordered, reliable, datagram-preserving
// channel. Concrete implementations live in framing/pfx, framing/crlf and
// transport/udp; this package only pins the shared contract so layers can
// be queried and composed polymorphically through hvfs.Query.
/*
 * Copyright (c) 2024, dsock authors.
 */
package msock

import (
	"context"

	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

// SizeUnknown marks an Mrecv buffer of indeterminate capacity is not used
// here (reserved for parity with the teacher's transport package semantics
// around unsized objects; dsock's Mrecv capacity is always the caller's
// iolist length).
const SizeUnknown = -1

// Conn is the MVFS capability block returned by hquery(h, hvfs.TagMessage).
type Conn interface {
	// Msend sends one message of length l.Len().
	Msend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error

	// Mrecv receives one whole message and returns its true size. If the
	// message is larger than l.Len(), EMSGSIZE is returned and the receive
	// half is poisoned; a nil l still frames/consumes the message but
	// discards the payload (spec §4.3).
	Mrecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) (int, error)
}
