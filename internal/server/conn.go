package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

const (
	// Replies are flushed when the input buffer drains or one of these
	// thresholds is reached, so a pipelined batch leaves in few writes.
	maxResponsesBeforeFlush = 128
	maxBytesBeforeFlush     = 64 * 1024

	readBufferSize = 64 * 1024
)

type conn struct {
	id     uuid.UUID
	nc     net.Conn
	ip     string
	closed atomic.Bool
}

func newConn(nc net.Conn) *conn {
	return &conn{
		id: uuid.New(),
		nc: nc,
		ip: remoteIP(nc.RemoteAddr()),
	}
}

// interrupt unblocks a pending read so the serving goroutine notices shutdown.
func (c *conn) interrupt() {
	_ = c.nc.SetReadDeadline(time.Now())
}

func (c *conn) close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}

// reject tells the client why it is refused and drops the connection.
func (c *conn) reject(msg string) {
	_ = c.nc.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = c.nc.Write(resp.AppendError(nil, msg))
	_ = c.close()
}

func (s *Server) serveConn(c *conn) {
	s.conns.Store(c.id, c)
	atomic.AddInt64(&activeConns, 1)
	log := s.log.With("conn", c.id.String(), "remote", c.ip)
	log.Debugw("connection opened")
	defer func() {
		s.conns.Delete(c.id)
		atomic.AddInt64(&activeConns, -1)
		_ = c.close()
		log.Debugw("connection closed")
	}()

	reader := bufio.NewReaderSize(c.nc, readBufferSize)
	frame := bytebufferpool.Get()
	out := bytebufferpool.Get()
	defer bytebufferpool.Put(frame)
	defer bytebufferpool.Put(out)

	responses := 0
	flush := func() bool {
		if len(out.B) == 0 {
			return true
		}
		if s.cfg.WriteTimeout > 0 {
			_ = c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		_, err := c.nc.Write(out.B)
		out.Reset()
		responses = 0
		if err != nil {
			log.Debugw("write failed", "error", err)
			return false
		}
		return true
	}

	for {
		if reader.Buffered() == 0 {
			if !s.waitForCommand(c, reader) {
				flush()
				return
			}
		}
		if s.cfg.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		var err error
		frame.B, err = resp.ReadFrame(reader, frame.B[:0])
		if err != nil {
			switch {
			case errors.Is(err, resp.ErrLimitExceeded):
				log.Warnw("protocol limit exceeded", "error", err)
				out.B = resp.AppendError(out.B, "protocol limit exceeded")
			case isTimeout(err):
				log.Debugw("read timed out")
			case !errors.Is(err, io.EOF):
				log.Debugw("read failed", "error", err)
			}
			flush()
			return
		}

		args := resp.Decode(frame.B)
		if resp.IsQuit(args) {
			out.B = resp.AppendOK(out.B)
			flush()
			return
		}
		if s.limiter.Allow(c.ip) {
			out.B = s.h.AppendDispatch(out.B, args)
		} else {
			commandsDenied.Inc()
			out.B = resp.AppendError(out.B, "rate limit exceeded")
		}
		responses++

		if reader.Buffered() == 0 || responses >= maxResponsesBeforeFlush || len(out.B) >= maxBytesBeforeFlush {
			if !flush() {
				return
			}
		}
	}
}

// waitForCommand blocks until the next command starts to arrive. It returns
// false when the connection should be closed: the peer went away, the idle
// timeout expired or the server is shutting down.
func (s *Server) waitForCommand(c *conn, reader *bufio.Reader) bool {
	if s.cfg.IdleTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	} else {
		_ = c.nc.SetReadDeadline(time.Time{})
	}
	// checked after the deadline is set so that an interrupt from Shutdown
	// cannot be overwritten
	if s.closing.Load() {
		return false
	}
	_, err := reader.Peek(1)
	return err == nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
