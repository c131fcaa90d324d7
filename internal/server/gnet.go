package server

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

const (
	gnetMaxResponsesBeforeFlush = 4096
	gnetMaxBytesBeforeFlush     = 64 * 1024
)

type gnetServer struct {
	gnet.BuiltinEventEngine
	s *Server
}

type session struct {
	id        uuid.UUID
	ip        string
	out       []byte
	responses int
}

func (g *gnetServer) OnBoot(eng gnet.Engine) gnet.Action {
	g.s.eng = eng
	g.s.engSet.Store(true)
	if g.s.closing.Load() {
		return gnet.Shutdown
	}
	g.s.markReady()
	g.s.log.Infow("server started", "engine", EngineGnet, "addr", g.s.cfg.Addr)
	return gnet.None
}

func (g *gnetServer) OnShutdown(gnet.Engine) {
	g.s.log.Infow("server stopped", "engine", EngineGnet)
}

func (g *gnetServer) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	connsAccepted.Inc()
	atomic.AddInt64(&activeConns, 1)
	c.SetContext(&session{
		id:  uuid.New(),
		ip:  remoteIP(c.RemoteAddr()),
		out: make([]byte, 0, 4096),
	})
	return nil, gnet.None
}

func (g *gnetServer) OnClose(c gnet.Conn, err error) gnet.Action {
	atomic.AddInt64(&activeConns, -1)
	if sess, ok := c.Context().(*session); ok && err != nil {
		g.s.log.Debugw("connection closed", "conn", sess.id.String(), "remote", sess.ip, "error", err)
	}
	return gnet.None
}

func (g *gnetServer) OnTraffic(c gnet.Conn) gnet.Action {
	sess := c.Context().(*session)

	for {
		n := c.InboundBuffered()
		if n == 0 {
			break
		}
		buf, err := c.Peek(n)
		if err != nil {
			break
		}

		frameLen, complete, err := resp.FrameLen(buf)
		if errors.Is(err, resp.ErrLimitExceeded) {
			g.s.log.Warnw("protocol limit exceeded", "conn", sess.id.String(), "remote", sess.ip)
			sess.out = resp.AppendError(sess.out, "protocol limit exceeded")
			g.flush(c, sess)
			return gnet.Close
		}
		if !complete {
			break
		}

		args := resp.Decode(buf[:frameLen])
		_, _ = c.Discard(frameLen)

		if resp.IsQuit(args) {
			sess.out = resp.AppendOK(sess.out)
			g.flush(c, sess)
			return gnet.Close
		}
		if g.s.limiter.Allow(sess.ip) {
			sess.out = g.s.h.AppendDispatch(sess.out, args)
		} else {
			commandsDenied.Inc()
			sess.out = resp.AppendError(sess.out, "rate limit exceeded")
		}
		sess.responses++

		if c.InboundBuffered() == 0 || len(sess.out) >= gnetMaxBytesBeforeFlush || sess.responses >= gnetMaxResponsesBeforeFlush {
			g.flush(c, sess)
		}
	}
	g.flush(c, sess)
	return gnet.None
}

func (g *gnetServer) flush(c gnet.Conn, sess *session) {
	if len(sess.out) == 0 {
		return
	}
	_, _ = c.Write(sess.out)
	sess.out = sess.out[:0]
	sess.responses = 0
}
