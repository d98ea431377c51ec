package sockio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittohttp/internal/fault"
)

// ChunkSize caps the byte count of a single sendfile call.
const ChunkSize = 1 << 20

// TransferFileRange sends length bytes of the file at path, starting at
// offset, to the socket fd using sendfile(2). The file is opened read-only and
// closed on every exit path.
//
// Returns the number of bytes actually sent. Any failure (open error, peer
// disconnect, premature EOF, exhausted retry budget) is an IncompleteTransfer;
// the byte count tells the caller how much of the body reached the socket.
func TransferFileRange(fd int, path string, offset, length int64, policy RetryPolicy) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fault.Wrap(fault.IncompleteTransfer, "sendfile", err, "open %s", path)
	}
	defer f.Close()

	return sendRange(fd, int(f.Fd()), offset, length, policy)
}

// sendRange drives the sendfile loop for an already open descriptor.
func sendRange(outFd, inFd int, offset, length int64, policy RetryPolicy) (int64, error) {
	r := retrier{policy: policy}
	pos := offset
	remaining := length
	var sent int64

	for remaining > 0 {
		count := ChunkSize
		if remaining < int64(count) {
			count = int(remaining)
		}

		n, err := unix.Sendfile(outFd, inFd, &pos, count)
		if err != nil {
			if isTransient(err) {
				if !r.wait() {
					return sent, fault.New(fault.IncompleteTransfer, "sendfile",
						"%d of %d bytes unsent after %d retries", remaining, length, policy.MaxRetries)
				}
				continue
			}
			if isDisconnect(err) {
				return sent, fault.Wrap(fault.IncompleteTransfer, "sendfile", err, "peer disconnected after %d bytes", sent)
			}
			return sent, fault.Wrap(fault.IncompleteTransfer, "sendfile", err, "fd %d", outFd)
		}
		if n == 0 {
			return sent, fault.New(fault.IncompleteTransfer, "sendfile",
				"source ended with %d of %d bytes unsent", remaining, length)
		}

		r.progress()
		sent += int64(n)
		if int64(n) >= remaining {
			remaining = 0
		} else {
			remaining -= int64(n)
		}
	}

	return sent, nil
}
