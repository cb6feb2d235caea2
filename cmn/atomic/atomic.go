// Package atomic provides thin wrapper types over sync/atomic matching the
// call shape used throughout the stack (s.term.done.CAS(...), s.sessST.Load()).
// Reconstructed from call-sites in the teacher's transport/api.go and
// transport/sendmsg.go; the teacher's own cmn/atomic package was not present
// in the retrieval pack.
/*
 * Copyright (c) 2024, dsock authors.
 */
package atomic

import "sync/atomic"

type Bool struct{ v atomic.Bool }

func (b *Bool) Load() bool          { return b.v.Load() }
func (b *Bool) Store(val bool)      { b.v.Store(val) }
func (b *Bool) CAS(old, nw bool) bool { return b.v.CompareAndSwap(old, nw) }
func (b *Bool) Swap(val bool) bool  { return b.v.Swap(val) }

type Int32 struct{ v atomic.Int32 }

func (i *Int32) Load() int32           { return i.v.Load() }
func (i *Int32) Store(val int32)       { i.v.Store(val) }
func (i *Int32) Add(delta int32) int32 { return i.v.Add(delta) }
func (i *Int32) CAS(old, nw int32) bool { return i.v.CompareAndSwap(old, nw) }

type Int64 struct{ v atomic.Int64 }

func (i *Int64) Load() int64           { return i.v.Load() }
func (i *Int64) Store(val int64)       { i.v.Store(val) }
func (i *Int64) Add(delta int64) int64 { return i.v.Add(delta) }
func (i *Int64) CAS(old, nw int64) bool { return i.v.CompareAndSwap(old, nw) }
func (i *Int64) Swap(val int64) int64  { return i.v.Swap(val) }
