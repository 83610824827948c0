package net

import (
	"crypto/tls"
	"net"
	"time"
)

// StreamLayer provides the low-level stream abstraction under the
// coordinator connection: simple TCP, TLS, or an in-memory pipe for tests.
// The node only ever dials out; it never listens.
type StreamLayer interface {
	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)
}

// TCPStreamLayer implements StreamLayer for plain TCP. It should only be
// used against a local coordinator during development.
type TCPStreamLayer struct{}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// TLSStreamLayer implements StreamLayer for TLS over TCP. This is the
// production transport to the coordinator.
type TLSStreamLayer struct {
	// SkipVerify disables verification of the coordinator's certificate
	// chain and host name. In this mode TLS is susceptible to
	// man-in-the-middle attacks; it should be used only for testing.
	SkipVerify bool
}

// Dial implements the StreamLayer interface.
func (t *TLSStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}

	conf := &tls.Config{
		InsecureSkipVerify: t.SkipVerify,
	}

	return tls.DialWithDialer(dialer, "tcp", address, conf)
}
