package fault

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("boom"), Internal},
		{"fault error", New(NotFound, "stat", "missing"), NotFound},
		{"wrapped by fmt", fmt.Errorf("serve: %w", New(Forbidden, "resolve", "escape")), Forbidden},
		{"nil", nil, Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIs(t *testing.T) {
	err := Wrap(ConnectionFault, "send", syscall.EPIPE, "peer went away")

	assert.True(t, Is(err, ConnectionFault))
	assert.False(t, Is(err, RetryExhausted))
	assert.False(t, Is(nil, Internal))
	assert.ErrorIs(t, err, syscall.EPIPE)
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(SocketSetupFault, "bind", syscall.EADDRINUSE, "127.0.0.1:%d", 80)
	require.Contains(t, err.Error(), "bind: 127.0.0.1:80")
	require.Contains(t, err.Error(), syscall.EADDRINUSE.Error())

	plain := New(MalformedRequest, "", "no request line")
	require.Equal(t, "no request line", plain.Error())
}

func TestFatal(t *testing.T) {
	assert.True(t, SocketSetupFault.Fatal())
	for _, k := range []Kind{ConnectionFault, RetryExhausted, ProtocolFraming, NotFound, IncompleteTransfer} {
		assert.False(t, k.Fatal(), k.String())
	}
}
