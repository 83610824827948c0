package net

import (
	"bufio"
	"math"
	"net"
	"sync"
	"time"

	"github.com/remnetwork/dvm-miner/src/protocol"
)

const (
	// we need a generous buffer size for batched vector payloads
	bufSize = math.MaxUint16
)

// Conn is the single stream to the coordinator. Sends are serialized under a
// lock, so messages written through the same Conn arrive in the order they
// were written. Recv must only be called from one goroutine.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	writeLock    sync.Mutex
	writeTimeout time.Duration
}

// Dial connects a stream layer to the coordinator address and wraps the
// resulting connection.
func Dial(layer StreamLayer, address string, dialTimeout, writeTimeout time.Duration) (*Conn, error) {
	c, err := layer.Dial(address, dialTimeout)
	if err != nil {
		return nil, err
	}

	return &Conn{
		conn:         c,
		r:            bufio.NewReaderSize(c, bufSize),
		w:            bufio.NewWriterSize(c, bufSize),
		writeTimeout: writeTimeout,
	}, nil
}

// Send encodes one message onto the stream.
func (c *Conn) Send(msg protocol.Message) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	return protocol.WriteMessage(c.w, msg)
}

// Recv blocks until the next message arrives or the stream fails.
func (c *Conn) Recv() (protocol.Message, error) {
	return protocol.ReadMessage(c.r)
}

// RemoteAddr returns the address of the coordinator side of the stream.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection. It unblocks a pending Recv.
func (c *Conn) Close() error {
	return c.conn.Close()
}
