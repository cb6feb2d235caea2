// Package pfx implements length-prefix framing (spec §4.4, §6): each
// message on the wire is a big-endian uint64 size followed by that many
// payload bytes; 0xFFFFFFFFFFFFFFFF is reserved as the termination marker.
//
// Grounded on original_source/pfx.c for the wire format and state machine,
// and on transport/pdu.go's header-then-payload read-loop shape (readHdr/
// readFrom split) for the Go idiom. Per spec §9's noted source bug, the
// original pfx_stop drain loop inverts flags before masking
// (!obj->flags & PEERDONE); Stop here loops on an explicit "peer
// terminator observed" boolean instead, which cannot suffer that bug by
// construction.
/*
 * Copyright (c) 2024, dsock authors.
 */
package pfx

const (
	headerSize     = 8
	terminatorSize = ^uint64(0) // 0xFFFFFFFFFFFFFFFF
)
