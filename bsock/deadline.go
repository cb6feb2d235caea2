package bsock

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/MarcusAsynchronous/dsock/cmn/cos"
	"github.com/MarcusAsynchronous/dsock/hvfs"
)

// waiter arms a RawIO's deadline for the duration of one Bsend/Brecv call
// and races it against ctx cancellation (spec §5: "every suspension point
// must observe cancellation"). net.Conn has no native context support, so
// on ctx.Done() we force the deadline to "now", which unblocks any pending
// Read/Write with a timeout-shaped error; mapErr/mapReadErr then turn that
// into ECANCELED instead of ETIMEDOUT by checking the canceled flag first.
// This is the standard idiomatic pattern for layering context cancellation
// over net.Conn.
type waiter struct {
	stop     chan struct{}
	canceled int32
}

func arm(ctx context.Context, dl hvfs.Deadline, setDeadline func(time.Time) error) *waiter {
	w := &waiter{stop: make(chan struct{})}
	_ = setDeadline(dl.Time())
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				atomic.StoreInt32(&w.canceled, 1)
				_ = setDeadline(time.Now())
			case <-w.stop:
			}
		}()
	}
	return w
}

func (w *waiter) disarm() { close(w.stop) }

func (w *waiter) isCanceled() bool { return atomic.LoadInt32(&w.canceled) == 1 }

// mapErr maps a write-path error.
func (w *waiter) mapErr(err error) error {
	if w.isCanceled() {
		return cos.ErrCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return cos.ErrTimedOut
	}
	return cos.ErrConnReset
}

// mapReadErr maps a read-path error, but passes io.EOF through unchanged so
// Brecv can decide between ErrPipe (nothing read yet) and ErrConnReset
// (partial read) per spec §4.2.
func (w *waiter) mapReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		if w.isCanceled() {
			return cos.ErrCanceled
		}
		return io.EOF
	}
	if w.isCanceled() {
		return cos.ErrCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return cos.ErrTimedOut
	}
	return cos.ErrConnReset
}
