// Package cfg carries the small set of runtime tunables used across the
// stack, grounded on the teacher's transport/tinit.go config.Transport.*
// fields and defaults (dfltBurstNum, dfltTick, dfltIdleTeardown).
/*
 * Copyright (c) 2024, dsock authors.
 */
package cfg

import "time"

// Config is the tunables struct threaded through the transports and
// framing/xform layers that actually read one of its fields. Only fields
// with a real call-site belong here (see DESIGN.md's cmn/cfg entry for the
// fields this shrank from and why each was cut rather than left unwired).
type Config struct {
	// RecvBufSize is the byte-stream implementation's fixed-size staging
	// buffer capacity (spec §4.2: "typical 1-4 KiB"), read by
	// transport/tcp, transport/unix, and internal/inproctest.
	RecvBufSize int

	// CrlfDefaultLineBuf sizes framing/crlf's Mrecv scratch buffer's initial
	// capacity, so the common case doesn't reallocate while accumulating a
	// line byte by byte.
	CrlfDefaultLineBuf int

	// NagleBatch / NagleInterval are the batching knobs xform/nagle.Start
	// falls back to when the caller passes a non-positive value.
	NagleBatch    int
	NagleInterval time.Duration
}

// Default mirrors the teacher's dfltBurstNum/dfltTick constants in shape if
// not in exact value (this library has no cluster burst-queue concept).
func Default() *Config {
	return &Config{
		RecvBufSize:        4 * 1024,
		CrlfDefaultLineBuf: 256,
		NagleBatch:         4 * 1024,
		NagleInterval:      20 * time.Millisecond,
	}
}
