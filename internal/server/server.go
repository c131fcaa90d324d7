// Package server accepts client connections, reassembles command frames and
// hands them to a Dispatcher. Two engines are available: a goroutine per
// connection engine backed by an ants worker pool, and a gnet event loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/panjf2000/gnet/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Dispatcher executes one decoded command and appends its encoded reply.
type Dispatcher interface {
	AppendDispatch(dst []byte, args []string) []byte
}

var (
	activeConns int64

	connsAccepted  = metrics.NewCounter(`rdb_connections_accepted_total`)
	connsRejected  = metrics.NewCounter(`rdb_connections_rejected_total`)
	commandsDenied = metrics.NewCounter(`rdb_commands_throttled_total`)
	_              = metrics.NewGauge(`rdb_connections_active`, func() float64 {
		return float64(atomic.LoadInt64(&activeConns))
	})
)

type Server struct {
	cfg     Config
	h       Dispatcher
	log     *zap.SugaredLogger
	limiter *limiter

	ready chan struct{}
	once  sync.Once

	// closed by Shutdown once connections are drained
	stopped  chan struct{}
	stopOnce sync.Once

	// net engine
	mu    sync.Mutex
	ln    net.Listener
	pool  *ants.Pool
	conns *xsync.MapOf[uuid.UUID, *conn]
	wg    sync.WaitGroup

	// gnet engine
	eng     gnet.Engine
	engSet  atomic.Bool
	closing atomic.Bool
}

func New(cfg Config, h Dispatcher, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineNet
	}
	return &Server{
		cfg:     cfg,
		h:       h,
		log:     log,
		limiter: newLimiter(cfg.RateLimit),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
		conns:   xsync.NewMapOf[uuid.UUID, *conn](),
	}
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address of the net engine, or the configured
// address for gnet. It is meaningful after Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr
}

// ActiveConns returns the number of connections currently served by the net
// engine.
func (s *Server) ActiveConns() int {
	return s.conns.Size()
}

// Serve listens and serves until Shutdown is called or ctx is done. It
// returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}
	switch s.cfg.Engine {
	case EngineNet:
		return s.serveNet(ctx)
	case EngineGnet:
		return s.serveGnet(ctx)
	default:
		return fmt.Errorf("server: unknown engine %q", s.cfg.Engine)
	}
}

func (s *Server) markReady() {
	s.once.Do(func() { close(s.ready) })
}

func (s *Server) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Server) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(limiterPruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-t.C:
			if n := s.limiter.prune(); n > 0 {
				s.log.Debugw("rate limiter buckets pruned", "count", n)
			}
		}
	}
}

func (s *Server) serveNet(ctx context.Context) error {
	pool, err := ants.NewPool(s.cfg.MaxConns,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			s.log.Errorw("connection handler panicked", "panic", p)
		}),
	)
	if err != nil {
		return fmt.Errorf("server: worker pool: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		pool.Release()
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.pool = pool
	s.mu.Unlock()
	s.markReady()
	s.log.Infow("server started", "engine", EngineNet, "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, s.shutdownOnCancel)
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				// Serve returns only after in-flight commands are done
				<-s.stopped
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		connsAccepted.Inc()

		c := newConn(nc)
		s.wg.Add(1)
		if err := pool.Submit(func() {
			defer s.wg.Done()
			s.serveConn(c)
		}); err != nil {
			s.wg.Done()
			connsRejected.Inc()
			s.log.Warnw("connection rejected", "remote", nc.RemoteAddr().String(), "error", err)
			c.reject("max number of clients reached")
		}
	}
}

func (s *Server) serveGnet(ctx context.Context) error {
	addr := s.cfg.Addr
	if !strings.Contains(addr, "://") {
		addr = "tcp://" + addr
	}
	stop := context.AfterFunc(ctx, s.shutdownOnCancel)
	defer stop()

	s.log.Infow("server starting", "engine", EngineGnet, "addr", addr)
	err := gnet.Run(&gnetServer{s: s}, addr,
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithReusePort(true),
		gnet.WithLogger(s.log),
	)
	if s.closing.Load() {
		<-s.stopped
		return nil
	}
	return err
}

func (s *Server) shutdownOnCancel() {
	ctx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.Shutdown(ctx); err != nil {
		s.log.Warnw("shutdown incomplete", "error", err)
	}
}

// Shutdown stops accepting connections, interrupts idle ones and waits for
// commands in flight to complete. When ctx expires first the remaining
// connections are closed forcibly. Concurrent callers wait for the first one.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		select {
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer s.markStopped()

	if s.cfg.Engine == EngineGnet {
		if !s.engSet.Load() {
			return nil
		}
		return s.eng.Stop(ctx)
	}

	var errs error
	s.mu.Lock()
	ln, pool := s.ln, s.pool
	s.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	s.conns.Range(func(_ uuid.UUID, c *conn) bool {
		c.interrupt()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.conns.Range(func(_ uuid.UUID, c *conn) bool {
			errs = multierr.Append(errs, c.close())
			return true
		})
		errs = multierr.Append(errs, ctx.Err())
	}

	if pool != nil {
		pool.Release()
	}
	s.log.Infow("server stopped", "engine", s.cfg.Engine)
	return errs
}
