// Package crypt implements an AEAD-framed encryption pass-through
// byte-stream layer. It is not named in the distilled module list but is
// grounded in original_source: dsock's design notes call out that
// transform layers are meant to compose arbitrarily over the byte-stream
// capability (the same slot tracing, throttling, batching, and compression
// occupy), and encryption is the one transform the original left as
// future work. Every record is length-prefixed (reusing the PFX wire
// idea) so receive knows exactly how many ciphertext bytes to read before
// calling Open.
//
// A record's plaintext size has no fixed relationship to any one caller's
// Brecv buffer size — a framing layer composed on top (e.g. framing/pfx)
// reads its own header and payload as separate, differently-sized Brecv
// calls. Brecv therefore decrypts whole records into an internal `pending`
// buffer and serves callers byte-stream style out of it, the same
// call-granularity independence xform/lz4's Brecv gets for free from
// lz4.Reader's own internal buffering.
//
// Uses only crypto/cipher (stdlib) rather than a third-party AEAD package:
// none of the retrieved example repos import a crypto library beyond the
// standard library, so there is no pack precedent to follow here and the
// stdlib's AEAD interface is the canonical Go way to do authenticated
// encryption regardless.
/*
 * Copyright (c) 2024, dsock authors.
 */
package crypt

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"sync"

	"github.com/MarcusAsynchronous/dsock/bsock"
	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/iolist"
)

const maxRecord = 1 << 20 // 1 MiB ciphertext record cap, guards against a hostile/corrupt length prefix

// Conn wraps a lower byte-stream Conn, encrypting every Bsend as one AEAD
// record and decrypting every Brecv the same way. Sequential per-direction
// counters seed each record's nonce so a single key is safe to reuse across
// the connection's lifetime.
type Conn struct {
	lower hvfs.Handle
	bs    bsock.Conn
	aead  cipher.AEAD

	sendMu  sync.Mutex
	sendSeq uint64

	recvMu  sync.Mutex
	recvSeq uint64
	pending []byte // decrypted plaintext not yet claimed by a Brecv call
}

// Start wraps lower's byte-stream interface with AEAD encryption using the
// supplied cipher (e.g. a cipher.AEAD from aes.NewCipher + cipher.NewGCM).
// Both ends of the connection must share the same AEAD key out of band.
func Start(lower hvfs.Handle, aead cipher.AEAD) (hvfs.Handle, error) {
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
	return hvfs.Make(&Conn{lower: nh, bs: bs, aead: aead}), nil
}

func (c *Conn) Query(tag *hvfs.Tag) any {
	if tag == hvfs.TagByteStream {
		return bsock.Conn(c)
	}
	return nil
}

func (c *Conn) Close() { hvfs.Close(c.lower) }
func (c *Conn) Done() error { return hvfs.Done(c.lower) }

func nonceFor(aead cipher.AEAD, seq uint64) []byte {
	n := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(n[len(n)-8:], seq)
	return n
}

// Bsend seals l's bytes as one record: a 4-byte big-endian ciphertext
// length followed by the sealed payload (ciphertext + AEAD tag).
func (c *Conn) Bsend(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	if err := l.ValidateSend(); err != nil {
		return err
	}
	plain := l.Flatten()

	c.sendMu.Lock()
	nonce := nonceFor(c.aead, c.sendSeq)
	c.sendSeq++
	c.sendMu.Unlock()

	sealed := c.aead.Seal(nil, nonce, plain, nil)
	if len(sealed) > maxRecord {
		return cos.ErrMsgSize
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(sealed)))
	full := iolist.Append(iolist.One(hdr[:]), iolist.Buf(sealed))
	return c.bs.Bsend(ctx, full, dl)
}

// Brecv fills l with exactly l.Len() plaintext bytes, pulling and decrypting
// as many wire records as needed and carrying any decrypted-but-unclaimed
// remainder in c.pending for the next call — the plaintext stream a caller
// sees has no record boundaries of its own.
func (c *Conn) Brecv(ctx context.Context, l *iolist.List, dl hvfs.Deadline) error {
	want := l.Len()

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for len(c.pending) < want {
		plain, err := c.readRecord(ctx, dl)
		if err != nil {
			return err
		}
		c.pending = append(c.pending, plain...)
	}
	if _, err := l.CopyFrom(c.pending[:want]); err != nil {
		return err
	}
	c.pending = c.pending[want:]
	return nil
}

// readRecord reads and decrypts one wire record: a 4-byte big-endian
// ciphertext length followed by the sealed payload.
func (c *Conn) readRecord(ctx context.Context, dl hvfs.Deadline) ([]byte, error) {
	var hdr [4]byte
	if err := c.bs.Brecv(ctx, iolist.One(hdr[:]), dl); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n > maxRecord {
		return nil, cos.ErrMsgSize
	}
	sealed := make([]byte, n)
	if err := c.bs.Brecv(ctx, iolist.One(sealed), dl); err != nil {
		return nil, err
	}

	nonce := nonceFor(c.aead, c.recvSeq)
	c.recvSeq++

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, cos.ErrConnReset
	}
	return plain, nil
}
