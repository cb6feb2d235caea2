// Package hvfs implements the polymorphic handle system (spec §4.1): a
// process-wide table of integer handles, each backed by a VFS block that
// supports runtime capability queries (hquery), synchronous teardown
// (hclose), and an optional half-close signal (hdone).
//
// There is no single teacher file for this: aistore doesn't need a
// polymorphic capability table because it has exactly one concrete stream
// type. The shape (duplicate-then-close ownership transfer, sticky
// per-direction poisoning) is grounded on transport/sendmsg.go's `term`
// handling and streamBase ownership; the table itself follows spec.md §4.1
// directly.
/*
 * Copyright (c) 2024, dsock authors.
 */
package hvfs

import (
	"sync"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
)

// Tag is a capability tag: an opaque, comparable identity. Per spec.md §9,
// "any unique sentinel suffices" — we use pointer identity of a private
// struct, which is exactly that, and gives tags a readable String() for logs.
type Tag struct{ name string }

func NewTag(name string) *Tag { return &Tag{name: name} }

func (t *Tag) String() string { return t.name }

// Well-known tags shared by every layer (spec §4.1: "byte-stream, message,
// and one per framing layer"). Framing/xform packages allocate their own
// private control-interface tags via NewTag.
var (
	TagByteStream = NewTag("bytestream")
	TagMessage    = NewTag("message")
)

// VFS is the per-handle dispatch table (spec §4.1).
type VFS interface {
	// Query returns, if supported, the interface block for tag, or nil.
	Query(tag *Tag) any
	// Close synchronously and infallibly tears down all owned resources.
	Close()
	// Done optionally emits a half-close/termination signal. Returns
	// cos.ErrNotSupported if the underlying resource has no such concept.
	Done() error
}

// Handle is an opaque, non-negative integer identifying a VFS-backed
// resource (spec §3).
type Handle int64

// Invalid is returned by failed constructors; spec.md's "-1" convention.
const Invalid Handle = -1

type entry struct {
	vfs  VFS
	refs int
}

type table struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]*entry
}

var tbl = &table{
	entries: make(map[Handle]*entry),
	next:    1,
}

// Make registers vfs and returns a fresh handle referring to it with a
// reference count of one (spec §4.1 hmake).
func Make(vfs VFS) Handle {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	h := tbl.next
	tbl.next++
	tbl.entries[h] = &entry{vfs: vfs, refs: 1}
	return h
}

func (t *table) lookup(h Handle) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, cos.ErrInvalid
	}
	return e, nil
}

// Dup produces a second handle referring to the same underlying resource
// (spec §4.1 hdup): hclose on one does not affect the other until the last
// reference goes away.
func Dup(h Handle) (Handle, error) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	e, ok := tbl.entries[h]
	if !ok {
		return Invalid, cos.ErrInvalid
	}
	e.refs++
	nh := tbl.next
	tbl.next++
	tbl.entries[nh] = e
	return nh, nil
}

// Close aborts unconditionally: no handshake, just a recursive close of
// owned children once the last reference to the underlying VFS goes away
// (spec §3 "hclose(h) aborts unconditionally").
func Close(h Handle) {
	tbl.mu.Lock()
	e, ok := tbl.entries[h]
	if !ok {
		tbl.mu.Unlock()
		return
	}
	delete(tbl.entries, h)
	e.refs--
	last := e.refs == 0
	tbl.mu.Unlock()
	if last {
		e.vfs.Close()
	}
}

// Query is the sole polymorphic dispatch primitive (spec §4.1 hquery).
func Query(h Handle, tag *Tag) (any, error) {
	e, err := tbl.lookup(h)
	if err != nil {
		return nil, err
	}
	v := e.vfs.Query(tag)
	if v == nil {
		return nil, cos.ErrNotSupported
	}
	return v, nil
}

// Done triggers the half-close signal, if the handle's VFS supports one.
func Done(h Handle) error {
	e, err := tbl.lookup(h)
	if err != nil {
		return err
	}
	return e.vfs.Done()
}

// Take implements the duplicate-then-close ownership-transfer idiom (spec
// §3 invariants): a layer being started obtains a private duplicate of its
// lower handle, then closes the caller's copy, so the caller's original
// handle is henceforth invalid while the resource stays alive under the
// layer's new handle.
func Take(h Handle) (Handle, error) {
	nh, err := Dup(h)
	if err != nil {
		return Invalid, err
	}
	Close(h)
	return nh, nil
}

// VFSOf returns the raw VFS block behind a handle, for callers that need
// the concrete layer type rather than a capability Query returns (e.g. a
// test reading xform/trace's Counters).
func VFSOf(h Handle) (VFS, error) {
	e, err := tbl.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.vfs, nil
}
