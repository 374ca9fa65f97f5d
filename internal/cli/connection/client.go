// Package connection provides the RESP client used by rediskv-cli.
package connection

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/rediskv-go/internal/server/redisserver"
)

// DefaultTimeout bounds dialing and each request/reply exchange.
const DefaultTimeout = 5 * time.Second

// Client is a single-connection RESP client.
type Client struct {
	conn    net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	timeout time.Duration
}

// Dial connects to a rediskv server.
func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, DefaultTimeout)
}

// DialTimeout connects with an explicit timeout, which also bounds each
// subsequent Do call.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connection: dial %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		br:      bufio.NewReader(conn),
		bw:      bufio.NewWriter(conn),
		timeout: timeout,
	}, nil
}

// Do sends one command and reads one reply.
func (c *Client) Do(args ...string) (redisserver.Reply, error) {
	if len(args) == 0 {
		return redisserver.Reply{}, fmt.Errorf("connection: empty command")
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return redisserver.Reply{}, err
	}
	if err := redisserver.WriteCommand(c.bw, args...); err != nil {
		return redisserver.Reply{}, fmt.Errorf("connection: write: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return redisserver.Reply{}, fmt.Errorf("connection: flush: %w", err)
	}

	reply, err := redisserver.ReadReply(c.br)
	if err != nil {
		return redisserver.Reply{}, fmt.Errorf("connection: read reply: %w", err)
	}
	return reply, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Format renders a reply the way redis-cli would.
func Format(r redisserver.Reply) string {
	switch r.Kind {
	case redisserver.SimpleStringReply:
		return r.Str
	case redisserver.ErrorReply:
		return "(error) " + r.Str
	case redisserver.IntegerReply:
		return fmt.Sprintf("(integer) %d", r.Int)
	case redisserver.BulkReply:
		if r.Nil {
			return "(nil)"
		}
		return fmt.Sprintf("%q", r.Bulk)
	case redisserver.ArrayReply:
		if len(r.Elems) == 0 {
			return "(empty array)"
		}
		out := ""
		for i, el := range r.Elems {
			if i > 0 {
				out += "\n"
			}
			out += fmt.Sprintf("%d) %s", i+1, Format(el))
		}
		return out
	default:
		return fmt.Sprintf("(unknown reply %c)", r.Kind)
	}
}
