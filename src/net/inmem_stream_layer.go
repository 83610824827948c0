package net

import (
	"errors"
	"net"
	"time"
)

// InmemStreamLayer implements StreamLayer over in-memory pipes. Every Dial
// hands the server half of a fresh pipe to the Accept channel, so tests can
// play the coordinator without binding sockets.
type InmemStreamLayer struct {
	acceptCh chan net.Conn
	closeCh  chan struct{}
}

// NewInmemStreamLayer ...
func NewInmemStreamLayer() *InmemStreamLayer {
	return &InmemStreamLayer{
		acceptCh: make(chan net.Conn, 16),
		closeCh:  make(chan struct{}),
	}
}

// Dial implements the StreamLayer interface. The address is ignored.
func (i *InmemStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	client, server := net.Pipe()

	select {
	case i.acceptCh <- server:
		return client, nil
	case <-i.closeCh:
		client.Close()
		server.Close()
		return nil, errors.New("inmem stream layer closed")
	case <-time.After(timeout):
		client.Close()
		server.Close()
		return nil, errors.New("inmem dial timeout")
	}
}

// Accept returns the channel of server-side connection halves.
func (i *InmemStreamLayer) Accept() <-chan net.Conn {
	return i.acceptCh
}

// Close stops the layer; subsequent dials fail.
func (i *InmemStreamLayer) Close() {
	select {
	case <-i.closeCh:
	default:
		close(i.closeCh)
	}
}
