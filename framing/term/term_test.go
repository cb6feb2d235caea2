package term_test

import (
	"testing"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/framing/term"
)

func TestFreshStateAllowsSendAndRecv(t *testing.T) {
	var s term.State
	if err := s.CheckSend(); err != nil {
		t.Fatalf("CheckSend on fresh state: %v", err)
	}
	if err := s.CheckRecv(); err != nil {
		t.Fatalf("CheckRecv on fresh state: %v", err)
	}
}

func TestMarkOutDoneStickyEPIPE(t *testing.T) {
	var s term.State
	s.MarkOutDone()
	if !s.IsOutDone() {
		t.Fatalf("expected IsOutDone true")
	}
	if err := s.CheckSend(); !cos.IsPipe(err) {
		t.Fatalf("got %v, want ErrPipe", err)
	}
	// sticky: repeated calls keep returning the same outcome
	if err := s.CheckSend(); !cos.IsPipe(err) {
		t.Fatalf("got %v on second call, want ErrPipe still", err)
	}
}

func TestMarkInDoneStickyEPIPE(t *testing.T) {
	var s term.State
	s.MarkInDone()
	if !s.IsInDone() {
		t.Fatalf("expected IsInDone true")
	}
	if err := s.CheckRecv(); !cos.IsPipe(err) {
		t.Fatalf("got %v, want ErrPipe", err)
	}
}

func TestPoisonOutTakesPrecedenceOverDone(t *testing.T) {
	var s term.State
	s.MarkOutDone()
	s.PoisonOut()
	if !s.IsOutErr() {
		t.Fatalf("expected IsOutErr true")
	}
	if err := s.CheckSend(); !cos.IsConnReset(err) {
		t.Fatalf("got %v, want ErrConnReset (poison overrides done)", err)
	}
}

func TestPoisonInTakesPrecedenceOverDone(t *testing.T) {
	var s term.State
	s.MarkInDone()
	s.PoisonIn()
	if err := s.CheckRecv(); !cos.IsConnReset(err) {
		t.Fatalf("got %v, want ErrConnReset (poison overrides done)", err)
	}
}

func TestSendAndRecvDirectionsAreIndependent(t *testing.T) {
	var s term.State
	s.MarkOutDone()
	if err := s.CheckRecv(); err != nil {
		t.Fatalf("CheckRecv should be unaffected by out-direction state: %v", err)
	}
	s.PoisonIn()
	if err := s.CheckSend(); !cos.IsPipe(err) {
		t.Fatalf("out direction should remain EPIPE-only (not poisoned by in): %v", err)
	}
}
