package sockio

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/dittohttp/internal/fault"
)

var patient = RetryPolicy{MaxRetries: 500, Backoff: time.Millisecond}

// socketPair returns two connected non-blocking stream sockets.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func writeAll(t *testing.T, fd int, b []byte) {
	t.Helper()
	require.NoError(t, Send(fd, b, patient))
}

func TestReceive_Exact(t *testing.T) {
	a, b := socketPair(t)
	writeAll(t, b, []byte("0123456789extra"))

	got, err := Receive(a, 10, patient)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))

	rest, err := Receive(a, 5, patient)
	require.NoError(t, err)
	assert.Equal(t, "extra", string(rest))
}

func TestReceive_AccumulatesPartialReads(t *testing.T) {
	a, b := socketPair(t)

	go func() {
		_ = Send(b, []byte("abc"), patient)
		time.Sleep(10 * time.Millisecond)
		_ = Send(b, []byte("defg"), patient)
	}()

	got, err := Receive(a, 7, patient)
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", string(got))
}

func TestReceive_RetryExhausted(t *testing.T) {
	a, b := socketPair(t)
	writeAll(t, b, []byte("abc"))

	_, err := Receive(a, 10, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, fault.RetryExhausted, fault.KindOf(err))
}

func TestReceive_PeerClosed(t *testing.T) {
	a, b := socketPair(t)
	writeAll(t, b, []byte("ab"))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	_, err := Receive(a, 4, patient)
	require.Error(t, err)
	assert.Equal(t, fault.ConnectionFault, fault.KindOf(err))
}

func TestSend_PeerClosedIsConnectionFault(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	require.NoError(t, unix.Close(fds[1]))

	err = Send(fds[0], []byte("hello"), patient)
	require.Error(t, err)
	assert.Equal(t, fault.ConnectionFault, fault.KindOf(err))
	assert.ErrorIs(t, err, unix.EPIPE)
}

func TestSend_StalledPeerExhaustsRetries(t *testing.T) {
	a, _ := socketPair(t)

	payload := make([]byte, 16<<20)
	err := Send(a, payload, RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, fault.RetryExhausted, fault.KindOf(err))
}

func TestReceiveUntil(t *testing.T) {
	delim := []byte("\r\n\r\n")

	tests := []struct {
		name string
		head string
	}{
		{"aligned", "GET / HTTP/1.1\r\nHost: a\r\n\r\n"},
		{"not aligned", "GET /a HTTP/1.0\r\n\r\n"},
		{"bare delimiter", "\r\n\r\n"},
		{"partial delimiter inside", "GET / HTTP/1.1\r\nX: \r\n\rz\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := socketPair(t)
			writeAll(t, b, []byte(tt.head+"BODY"))

			got, err := ReceiveUntil(a, 1024, delim, patient)
			require.NoError(t, err)
			assert.Equal(t, tt.head, string(got))

			// nothing past the delimiter was consumed
			rest, err := Receive(a, 4, patient)
			require.NoError(t, err)
			assert.Equal(t, "BODY", string(rest))
		})
	}
}

func TestReceiveUntil_SlowSender(t *testing.T) {
	a, b := socketPair(t)

	go func() {
		for _, part := range []string{"GET / HT", "TP/1.1\r", "\n\r", "\n"} {
			_ = Send(b, []byte(part), patient)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	got, err := ReceiveUntil(a, 1024, []byte("\r\n\r\n"), patient)
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(got))
}

func TestReceiveUntil_TooLong(t *testing.T) {
	a, b := socketPair(t)
	writeAll(t, b, bytes.Repeat([]byte("x"), 200))

	got, err := ReceiveUntil(a, 64, []byte("\r\n\r\n"), patient)
	require.Error(t, err)
	assert.Equal(t, fault.ProtocolFraming, fault.KindOf(err))
	assert.Len(t, got, 64)
}

func TestReceiveUntil_PeerClosedMidHead(t *testing.T) {
	a, b := socketPair(t)
	writeAll(t, b, []byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	_, err := ReceiveUntil(a, 1024, []byte("\r\n\r\n"), patient)
	require.Error(t, err)
	assert.Equal(t, fault.ConnectionFault, fault.KindOf(err))
}

func TestTailOverlap(t *testing.T) {
	delim := []byte("\r\n\r\n")
	assert.Equal(t, 0, tailOverlap([]byte("abc"), delim))
	assert.Equal(t, 1, tailOverlap([]byte("abc\r"), delim))
	assert.Equal(t, 2, tailOverlap([]byte("abc\r\n"), delim))
	assert.Equal(t, 3, tailOverlap([]byte("abc\r\n\r"), delim))
	assert.Equal(t, 0, tailOverlap(nil, delim))
}

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestTransferFileRange(t *testing.T) {
	path, data := writeTempFile(t, 300_000)
	a, b := socketPair(t)

	const offset, length = 1234, 250_000

	received := make(chan []byte, 1)
	go func() {
		got, _ := Receive(b, length, patient)
		received <- got
	}()

	sent, err := TransferFileRange(a, path, offset, length, patient)
	require.NoError(t, err)
	assert.EqualValues(t, length, sent)

	got := <-received
	require.Len(t, got, length)
	assert.True(t, bytes.Equal(data[offset:offset+length], got))
}

func TestTransferFileRange_PastEOF(t *testing.T) {
	path, _ := writeTempFile(t, 100)
	a, b := socketPair(t)

	sent, err := TransferFileRange(a, path, 40, 100, patient)
	require.Error(t, err)
	assert.Equal(t, fault.IncompleteTransfer, fault.KindOf(err))
	assert.EqualValues(t, 60, sent)

	got, err := Receive(b, 60, patient)
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestTransferFileRange_MissingFile(t *testing.T) {
	a, _ := socketPair(t)

	sent, err := TransferFileRange(a, filepath.Join(t.TempDir(), "nope"), 0, 10, patient)
	require.Error(t, err)
	assert.Equal(t, fault.IncompleteTransfer, fault.KindOf(err))
	assert.Zero(t, sent)
}

func TestTransferFileRange_PeerGone(t *testing.T) {
	path, _ := writeTempFile(t, 4<<20)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	require.NoError(t, unix.Close(fds[1]))

	_, err = TransferFileRange(fds[0], path, 0, 4<<20, patient)
	require.Error(t, err)
	assert.Equal(t, fault.IncompleteTransfer, fault.KindOf(err))
}
