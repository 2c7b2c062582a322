// Package network carries protocol datagrams between the controller and its peer.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"wallbox-service/internal/logger"
)

const (
	maxDatagramSize = 1500

	// The peer exchanges messages at about 10 Hz.
	inboundRate  = 200
	inboundBurst = 50
)

var ErrNotConnected = errors.New("transport not connected")

// UDPTransport sends to a fixed peer address and delivers every received
// datagram to the registered handler from its receive goroutine.
type UDPTransport struct {
	listenAddr string
	peerAddr   string
	logger     *logger.Logger
	limiter    *rate.Limiter

	mu      sync.Mutex
	conn    net.PacketConn
	peer    *net.UDPAddr
	handler func([]byte)
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

func NewUDPTransport(listenAddr, peerAddr string, l *logger.Logger) *UDPTransport {
	return &UDPTransport{
		listenAddr: listenAddr,
		peerAddr:   peerAddr,
		logger:     l.WithTag("UDP"),
		limiter:    rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

// SetReceiveHandler replaces the handler. Datagrams arriving without one are dropped.
func (t *UDPTransport) SetReceiveHandler(h func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *UDPTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	peer, err := net.ResolveUDPAddr("udp", t.peerAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve peer %s: %w", t.peerAddr, err)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp", t.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.listenAddr, err)
	}

	t.conn = conn
	t.peer = peer
	t.wg.Add(1)
	go t.receiveLoop(conn)

	t.logger.Infof("Listening on %s, peer %s", conn.LocalAddr(), peer)
	return nil
}

// reuseAddr lets a restarted service rebind while the old socket lingers.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

func (t *UDPTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	t.wg.Wait()
	t.logger.Infof("Transport closed")
	return err
}

func (t *UDPTransport) Send(b []byte) error {
	t.mu.Lock()
	conn, peer := t.conn, t.peer
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.WriteTo(b, peer); err != nil {
		return fmt.Errorf("failed to send to %s: %w", peer, err)
	}
	return nil
}

// LocalAddr returns the bound address, or nil when disconnected.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Dropped counts datagrams discarded by the inbound rate limit.
func (t *UDPTransport) Dropped() uint64 {
	return t.dropped.Load()
}

func (t *UDPTransport) receiveLoop(conn net.PacketConn) {
	defer t.wg.Done()
	buf := make([]byte, maxDatagramSize)

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warnf("Read error: %v", err)
			continue
		}
		if !t.limiter.Allow() {
			if t.dropped.Add(1) == 1 {
				t.logger.Warnf("Inbound rate exceeded, dropping datagrams from %s", from)
			}
			continue
		}

		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h == nil {
			continue
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		h(msg)
	}
}
