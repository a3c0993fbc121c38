package sal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreateBindListenCloseSocket(t *testing.T) {
	d, err := CreateSocket(FamilyIPv4, SockStream)
	require.NoError(t, err)
	defer CloseSocket(d)

	addr, err := ResolveAddr("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, BindSocket(d, addr))
	require.NoError(t, ListenSocket(d, 8))
}

func TestSocketOperationsRejectInvalidDescriptor(t *testing.T) {
	_, err := GetSockOpt(InvalidDescriptor, unix.SOL_SOCKET, unix.SO_TYPE)
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	err = SetSockOpt(InvalidDescriptor, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	err = BindSocket(InvalidDescriptor, Addr{})
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	err = ListenSocket(InvalidDescriptor, 1)
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	_, _, err = AcceptSocket(InvalidDescriptor)
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	_, err = Send(InvalidDescriptor, []byte("x"))
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	_, err = Recv(InvalidDescriptor, make([]byte, 1))
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)

	err = CloseSocket(InvalidDescriptor)
	assert.Equal(t, ErrBadSocket, err.(*Error).Code)
}

func TestGetSetSockOptRoundTrip(t *testing.T) {
	d, err := CreateSocket(FamilyIPv4, SockStream)
	require.NoError(t, err)
	defer CloseSocket(d)

	require.NoError(t, SetSockOpt(d, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))
	v, err := GetSockOpt(d, unix.SOL_SOCKET, unix.SO_REUSEADDR)
	require.NoError(t, err)
	assert.NotEqual(t, 0, v)
}
