package tcl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultReadSize matches the chunk size the Tcl server is read with.
const DefaultReadSize = 1024

// Client is a connection to an OpenOCD Tcl server. Writes are serialized so
// commands and console echoes from different goroutines never interleave.
// Receive must only be called from one goroutine.
type Client struct {
	conn     net.Conn
	mu       sync.Mutex
	splitter Splitter
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// DialOptions controls connection retries.
type DialOptions struct {
	// MaxElapsed bounds the total time spent retrying. Zero tries once.
	MaxElapsed time.Duration
	Timeout    time.Duration
}

// Dial connects to addr, retrying with exponential backoff until the
// connection succeeds, ctx is done or opts.MaxElapsed has passed.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Client, error) {
	dialer := net.Dialer{Timeout: opts.Timeout}
	attempt := 0
	op := func() (net.Conn, error) {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil && opts.MaxElapsed <= 0 {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(opts.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Failed to connect to Tcl server, retrying", "addr", addr, "attempt", attempt, "retryIn", next, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	slog.Info("Connected to Tcl server", "addr", addr)
	return NewClient(conn), nil
}

// Send runs cmd on the server. The reply arrives through Receive.
func (c *Client) Send(cmd string) error {
	return c.write(FormatCommand(cmd))
}

// Echo prints line on the server console.
func (c *Client) Echo(line string) error {
	return c.write(FormatEcho(line))
}

func (c *Client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("tcl: write: %w", err)
	}
	return nil
}

// Receive reads from the connection and calls handle for every complete
// message until the connection fails. A closed connection is reported as
// ErrConnectionClosed.
func (c *Client) Receive(handle func(msg []byte)) error {
	buf := make([]byte, DefaultReadSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, msg := range c.splitter.Write(buf[:n]) {
				handle(msg)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return ErrConnectionClosed
			}
			return fmt.Errorf("tcl: read: %w", err)
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
