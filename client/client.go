package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
)

// ErrClosed is returned by Send once the client was closed.
var ErrClosed = errors.New("client: connection closed")

type Handler interface {
	Handle(ctx context.Context, data []byte)
}

type HandlerFunc func(ctx context.Context, data []byte)

func (h HandlerFunc) Handle(ctx context.Context, data []byte) {
	h(ctx, data)
}

// Client is a raw byte connection to a relay. Bytes come back in whatever
// chunks the relay forwarded them; no framing is applied.
type Client struct {
	conn      net.Conn
	isClosing uint32
}

func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("error dial connect with addr %s. %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// LocalAddr is the address the relay knows this client by.
func (c *Client) LocalAddr() string {
	return c.conn.LocalAddr().String()
}

// Handle passes every chunk read from the relay to handler until the
// connection ends or ctx is done. The connection is closed on return.
func (c *Client) Handle(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, c.close)
	defer func() {
		stop()
		c.close()
	}()

	var buff = make([]byte, 1024)
	for {
		n, err := c.conn.Read(buff)
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, buff[:n])
			handler.Handle(ctx, msg)
		}
		if err != nil {
			if ctx.Err() != nil || atomic.LoadUint32(&c.isClosing) == 1 || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("error read data from relay. %w", err)
		}
	}
}

func (c *Client) Send(ctx context.Context, msg []byte) error {
	if atomic.LoadUint32(&c.isClosing) == 1 {
		return ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("error set write deadline. %w", err)
		}
	}
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("error write to conn. %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.close()
}

func (c *Client) close() {
	if atomic.CompareAndSwapUint32(&c.isClosing, 0, 1) {
		c.conn.Close()
	}
}
