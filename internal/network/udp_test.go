package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallbox-service/internal/logger"
)

func newPeer(t *testing.T) net.PacketConn {
	t.Helper()
	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })
	return peer
}

func TestUDPLoopback(t *testing.T) {
	peer := newPeer(t)
	tr := NewUDPTransport("127.0.0.1:0", peer.LocalAddr().String(), logger.Nop())

	received := make(chan []byte, 1)
	tr.SetReceiveHandler(func(b []byte) { received <- b })

	require.NoError(t, tr.Connect())
	defer tr.Disconnect()
	require.NoError(t, tr.Connect(), "connect is idempotent")

	require.NoError(t, tr.Send([]byte{0, 4, 1}))
	buf := make([]byte, 16)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 4, 1}, buf[:n])

	_, err = peer.WriteTo([]byte{0, 5, 7}, tr.LocalAddr())
	require.NoError(t, err)
	select {
	case b := <-received:
		assert.Equal(t, []byte{0, 5, 7}, b)
	case <-time.After(time.Second):
		t.Fatal("datagram not delivered")
	}
}

func TestUDPSendWhileDisconnected(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", "127.0.0.1:9", logger.Nop())
	assert.ErrorIs(t, tr.Send([]byte{1}), ErrNotConnected)
	assert.NoError(t, tr.Disconnect())
	assert.Nil(t, tr.LocalAddr())
}

func TestUDPReconnect(t *testing.T) {
	peer := newPeer(t)
	tr := NewUDPTransport("127.0.0.1:0", peer.LocalAddr().String(), logger.Nop())

	require.NoError(t, tr.Connect())
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Connect())
	defer tr.Disconnect()
	assert.NotNil(t, tr.LocalAddr())
}

func TestUDPBadPeer(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", "not-an-address", logger.Nop())
	assert.Error(t, tr.Connect())
}
