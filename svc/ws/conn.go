package ws

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Conn is one upgraded connection. Writes from the session loop and
// from broadcasts by other sessions are serialized by writeMu.
type Conn struct {
	raw          net.Conn
	br           *bufio.Reader
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newConn(raw net.Conn, br *bufio.Reader, writeTimeout time.Duration) *Conn {
	return &Conn{raw: raw, br: br, writeTimeout: writeTimeout}
}

// SendText satisfies hub.Sender.
func (c *Conn) SendText(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return WriteText(c.raw, payload)
}

func (c *Conn) readFrame(idleTimeout time.Duration, maxPayload int64) (byte, []byte, error) {
	if idleTimeout > 0 {
		c.raw.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	return ReadFrame(c.br, maxPayload)
}

func (c *Conn) Close() error {
	return c.raw.Close()
}
