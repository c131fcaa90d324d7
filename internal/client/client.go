// Package client is a small RESP client used by the cli subcommand, the
// server tests and the load generator.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

// Reply is one decoded server reply.
type Reply struct {
	Kind  byte // one of the resp.RESP* type bytes
	Str   string
	Int   int64
	Null  bool
	Array []Reply
}

// Err returns the server error carried by an error reply.
func (r Reply) Err() error {
	if r.Kind != resp.RESPError {
		return nil
	}
	return errors.New(r.Str)
}

// String renders the reply the way redis-cli does.
func (r Reply) String() string {
	var sb strings.Builder
	r.format(&sb, "")
	return sb.String()
}

func (r Reply) format(sb *strings.Builder, indent string) {
	switch r.Kind {
	case resp.RESPString:
		sb.WriteString(r.Str)
	case resp.RESPError:
		sb.WriteString("(error) " + r.Str)
	case resp.RESPInteger:
		sb.WriteString("(integer) " + strconv.FormatInt(r.Int, 10))
	case resp.RESPBulkString:
		if r.Null {
			sb.WriteString("(nil)")
			return
		}
		sb.WriteString(strconv.Quote(r.Str))
	case resp.RESPArray:
		if len(r.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		for i, item := range r.Array {
			if i > 0 {
				sb.WriteString("\n" + indent)
			}
			prefix := strconv.Itoa(i+1) + ") "
			sb.WriteString(prefix)
			item.format(sb, indent+strings.Repeat(" ", len(prefix)))
		}
	}
}

type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	scratch []byte
	timeout time.Duration
}

// Dial connects to addr. A positive timeout bounds the dial and every
// following round trip.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64*1024),
		writer:  bufio.NewWriterSize(conn, 64*1024),
		scratch: make([]byte, 0, 256),
		timeout: timeout,
	}, nil
}

// Do sends one command and waits for its reply. Error replies are returned
// as a Reply, not as an error.
func (c *Client) Do(args ...string) (Reply, error) {
	c.Send(args...)
	if err := c.Flush(); err != nil {
		return Reply{}, err
	}
	return c.Receive()
}

// Send buffers a command without flushing it, for pipelining.
func (c *Client) Send(args ...string) {
	c.scratch = resp.AppendCommand(c.scratch[:0], args...)
	_, _ = c.writer.Write(c.scratch)
}

// SendRaw buffers bytes as they are, for inline commands and protocol tests.
func (c *Client) SendRaw(raw []byte) {
	_, _ = c.writer.Write(raw)
}

func (c *Client) Flush() error {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	return c.writer.Flush()
}

// Receive reads the next reply.
func (c *Client) Receive() (Reply, error) {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	return c.readReply()
}

func (c *Client) readReply() (Reply, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return Reply{}, err
	}
	if len(line) < 3 || !strings.HasSuffix(line, "\r\n") {
		return Reply{}, fmt.Errorf("invalid RESP reply %q", line)
	}
	body := line[1 : len(line)-2]

	r := Reply{Kind: line[0]}
	switch r.Kind {
	case resp.RESPString, resp.RESPError:
		r.Str = body
	case resp.RESPInteger:
		r.Int, err = strconv.ParseInt(body, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("invalid integer reply %q", body)
		}
	case resp.RESPBulkString:
		length, err := resp.ParseInt([]byte(body))
		if err != nil {
			return Reply{}, err
		}
		if length < 0 {
			r.Null = true
			return r, nil
		}
		data := make([]byte, length+2)
		if _, err := io.ReadFull(c.reader, data); err != nil {
			return Reply{}, err
		}
		r.Str = string(data[:length])
	case resp.RESPArray:
		n, err := resp.ParseInt([]byte(body))
		if err != nil {
			return Reply{}, err
		}
		if n < 0 {
			r.Null = true
			return r, nil
		}
		r.Array = make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			item, err := c.readReply()
			if err != nil {
				return Reply{}, err
			}
			r.Array = append(r.Array, item)
		}
	default:
		return Reply{}, fmt.Errorf("unexpected RESP type: %c", r.Kind)
	}
	return r, nil
}

// Close sends QUIT and closes the connection.
func (c *Client) Close() error {
	c.Send("QUIT")
	if err := c.Flush(); err == nil {
		_, _ = c.Receive()
	}
	return c.conn.Close()
}
