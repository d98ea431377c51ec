// Package sockio implements the non-blocking socket primitives the engine and
// the HTTP layer are built on: exact-length receive, full send, receive up to
// a delimiter, and zero-copy file range transfer.
//
// All primitives operate on raw, non-blocking descriptors. EAGAIN and EINTR
// are transient: the primitive sleeps for the policy backoff and tries again,
// up to MaxRetries consecutive attempts that made no progress. Any progress
// resets the budget, so a slow but live peer is never cut off while a stalled
// one is abandoned after MaxRetries*Backoff.
package sockio

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittohttp/internal/fault"
)

// RetryPolicy bounds the retry loop of every primitive.
type RetryPolicy struct {
	// MaxRetries is the number of consecutive transient failures tolerated
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// Backoff is the sleep between two attempts
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff" validate:"gte=0"`
}

// DefaultSocketPolicy is used for request head capture on the event loop.
var DefaultSocketPolicy = RetryPolicy{MaxRetries: 10, Backoff: 2 * time.Millisecond}

// DefaultTransferPolicy is used by workers for response headers and bodies.
var DefaultTransferPolicy = RetryPolicy{MaxRetries: 1000, Backoff: 5 * time.Millisecond}

// retrier tracks attempts without progress. A cumulative retrier never
// resets, which bounds the total stall of a whole operation.
type retrier struct {
	policy     RetryPolicy
	misses     int
	cumulative bool
}

// wait records a transient failure. It returns false when the budget is spent.
func (r *retrier) wait() bool {
	r.misses++
	if r.misses > r.policy.MaxRetries {
		return false
	}
	if r.policy.Backoff > 0 {
		time.Sleep(r.policy.Backoff)
	}
	return true
}

func (r *retrier) progress() {
	if !r.cumulative {
		r.misses = 0
	}
}

// isTransient reports whether err only means "try again later".
func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// isDisconnect reports whether err means the peer is gone.
func isDisconnect(err error) bool {
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.ENOTCONN)
}

// Receive reads exactly n bytes from fd.
//
// Returns:
//   - ConnectionFault if the peer closes before n bytes arrive or a
//     non-transient OS error occurs
//   - RetryExhausted if the retry budget is spent with data outstanding
func Receive(fd int, n int, policy RetryPolicy) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := receiveInto(fd, buf, &retrier{policy: policy}); err != nil {
		return buf[:0], err
	}
	return buf, nil
}

// receiveInto fills buf completely and returns the number of bytes read.
func receiveInto(fd int, buf []byte, r *retrier) (int, error) {
	offset := 0
	remaining := len(buf)

	for remaining > 0 {
		n, err := unix.Read(fd, buf[offset:])
		if err != nil {
			if isTransient(err) {
				if !r.wait() {
					return offset, fault.New(fault.RetryExhausted, "recv",
						"%d of %d bytes outstanding after %d retries", remaining, len(buf), r.policy.MaxRetries)
				}
				continue
			}
			return offset, fault.Wrap(fault.ConnectionFault, "recv", err, "fd %d", fd)
		}
		if n == 0 {
			return offset, fault.New(fault.ConnectionFault, "recv", "peer closed fd %d", fd)
		}

		r.progress()
		offset += n
		if n >= remaining {
			remaining = 0
		} else {
			remaining -= n
		}
	}

	return offset, nil
}

// Send writes all of b to fd.
//
// MSG_NOSIGNAL keeps a peer that closed its read side from raising SIGPIPE;
// the broken pipe surfaces as a ConnectionFault instead.
func Send(fd int, b []byte, policy RetryPolicy) error {
	r := retrier{policy: policy}
	offset := 0
	remaining := len(b)

	for remaining > 0 {
		n, err := unix.SendmsgN(fd, b[offset:], nil, nil, unix.MSG_NOSIGNAL)
		if err != nil {
			if isTransient(err) {
				if !r.wait() {
					return fault.New(fault.RetryExhausted, "send",
						"%d of %d bytes unsent after %d retries", remaining, len(b), policy.MaxRetries)
				}
				continue
			}
			return fault.Wrap(fault.ConnectionFault, "send", err, "fd %d", fd)
		}

		if n > 0 {
			r.progress()
		}
		offset += n
		if n >= remaining {
			remaining = 0
		} else {
			remaining -= n
		}
	}

	return nil
}

// ReceiveUntil reads from fd until the accumulated bytes end with delim, and
// returns everything read including the delimiter.
//
// Each read asks for at most len(delim) bytes, and only as many as could
// complete the delimiter given the current tail, so nothing past the
// delimiter is ever consumed from the socket. The retry budget covers the
// whole head rather than each read, so a trickling peer cannot hold the
// caller for longer than MaxRetries*Backoff in total.
//
// Returns ProtocolFraming if maxLen bytes are read without finding delim.
func ReceiveUntil(fd int, maxLen int, delim []byte, policy RetryPolicy) ([]byte, error) {
	if len(delim) == 0 {
		return nil, fault.New(fault.Internal, "recv-until", "empty delimiter")
	}

	acc := make([]byte, 0, min(maxLen, 1024))
	chunk := make([]byte, len(delim))
	r := &retrier{policy: policy, cumulative: true}

	for len(acc) < maxLen {
		want := len(delim) - tailOverlap(acc, delim)
		if room := maxLen - len(acc); want > room {
			want = room
		}

		n, err := receiveInto(fd, chunk[:want], r)
		acc = append(acc, chunk[:n]...)
		if err != nil {
			return acc, err
		}

		if len(acc) >= len(delim) && string(acc[len(acc)-len(delim):]) == string(delim) {
			return acc, nil
		}
	}

	return acc, fault.New(fault.ProtocolFraming, "recv-until",
		"delimiter %q not found within %d bytes", delim, maxLen)
}

// tailOverlap returns the length of the longest suffix of acc that is a
// proper prefix of delim.
func tailOverlap(acc, delim []byte) int {
	longest := min(len(acc), len(delim)-1)
	for k := longest; k > 0; k-- {
		if string(acc[len(acc)-k:]) == string(delim[:k]) {
			return k
		}
	}
	return 0
}
