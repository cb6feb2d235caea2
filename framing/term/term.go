// Package term implements the termination/poisoning state machine shared
// by every framing layer (spec §3 invariants): four sticky bits —
// in_done, out_done, in_err, out_err — with the rule that once a direction
// is poisoned or done, every subsequent call on that direction returns the
// same sticky outcome.
//
// Factored out of pfx/crlf because both need byte-identical handshake
// semantics; the teacher factors the analogous concept out too (the `term`
// struct embedded in transport/sendmsg.go's streamBase, shared between
// Stream and MsgStream).
/*
 * Copyright (c) 2024, dsock authors.
 */
package term

import (
	"sync"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
)

// State tracks the four sticky bits for one framing-layer instance.
type State struct {
	mu      sync.Mutex
	inDone  bool
	outDone bool
	inErr   bool
	outErr  bool
}

// CheckSend returns the sticky error to short-circuit a send with, or nil
// if the send may proceed (spec: "After out_done, send returns EPIPE";
// "A poisoned half returns ECONNRESET").
func (s *State) CheckSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.outErr:
		return cos.ErrConnReset
	case s.outDone:
		return cos.ErrPipe
	default:
		return nil
	}
}

// CheckRecv is CheckSend's receive-side counterpart.
func (s *State) CheckRecv() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.inErr:
		return cos.ErrConnReset
	case s.inDone:
		return cos.ErrPipe
	default:
		return nil
	}
}

// PoisonOut latches the send half as permanently failed.
func (s *State) PoisonOut() {
	s.mu.Lock()
	s.outErr = true
	s.mu.Unlock()
}

// PoisonIn latches the receive half as permanently failed.
func (s *State) PoisonIn() {
	s.mu.Lock()
	s.inErr = true
	s.mu.Unlock()
}

// MarkOutDone records that we have sent our terminator.
func (s *State) MarkOutDone() {
	s.mu.Lock()
	s.outDone = true
	s.mu.Unlock()
}

// MarkInDone records that the peer's terminator was observed.
func (s *State) MarkInDone() {
	s.mu.Lock()
	s.inDone = true
	s.mu.Unlock()
}

func (s *State) IsOutDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outDone
}

func (s *State) IsInDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inDone
}

func (s *State) IsOutErr() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outErr
}

func (s *State) IsInErr() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inErr
}
