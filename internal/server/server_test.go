package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VoolFI71/go-rdb/internal/client"
	"github.com/VoolFI71/go-rdb/internal/handler"
	"github.com/VoolFI71/go-rdb/internal/resp"
	"github.com/VoolFI71/go-rdb/internal/storage"
)

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv := New(cfg, handler.New(storage.New()), nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background()) }()

	select {
	case <-srv.Ready():
	case err := <-errc:
		t.Fatalf("Serve: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})
	return srv, srv.Addr()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return c
}

func mustDo(t *testing.T, c *client.Client, args ...string) client.Reply {
	t.Helper()
	r, err := c.Do(args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return r
}

func checkScenario(t *testing.T, c *client.Client) {
	t.Helper()
	if r := mustDo(t, c, "SET", "a", "1"); r.Str != "OK" {
		t.Fatalf("SET = %v", r)
	}
	if r := mustDo(t, c, "GET", "a"); r.Str != "1" || r.Null {
		t.Fatalf("GET = %v", r)
	}
	if r := mustDo(t, c, "DEL", "a"); r.Int != 1 {
		t.Fatalf("DEL = %v", r)
	}
	if r := mustDo(t, c, "GET", "a"); !r.Null {
		t.Fatalf("GET after DEL = %v", r)
	}
	if r := mustDo(t, c, "FOOO"); r.Err() == nil || r.Str != "Error: Unknown Command" {
		t.Fatalf("unknown command = %v", r)
	}
}

func TestServeNet(t *testing.T) {
	_, addr := startServer(t, DefaultConfig())
	c := dial(t, addr)
	defer c.Close()
	checkScenario(t, c)
}

func TestQuitClosesConnection(t *testing.T) {
	_, addr := startServer(t, DefaultConfig())
	c := dial(t, addr)

	if r := mustDo(t, c, "QUIT"); r.Str != "OK" {
		t.Fatalf("QUIT = %v", r)
	}
	if _, err := c.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after QUIT, got %v", err)
	}
}

func TestPipelining(t *testing.T) {
	_, addr := startServer(t, DefaultConfig())
	c := dial(t, addr)
	defer c.Close()

	c.Send("SET", "k", "v")
	c.Send("GET", "k")
	c.SendRaw([]byte("PING\r\n"))
	c.Send("RPUSH", "l", "a", "b")
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []string{"OK", `"v"`, "PONG", "(integer) 2"}
	for i, w := range want {
		r, err := c.Receive()
		if err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
		if r.String() != w {
			t.Errorf("reply %d = %q, want %q", i, r.String(), w)
		}
	}
}

func TestProtocolLimit(t *testing.T) {
	_, addr := startServer(t, DefaultConfig())
	c := dial(t, addr)

	c.SendRaw([]byte("*1\r\n$999999999999\r\n"))
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	r, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !strings.Contains(r.Str, "protocol limit exceeded") {
		t.Fatalf("reply = %v", r)
	}
	if _, err := c.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1
	_, addr := startServer(t, cfg)
	c := dial(t, addr)
	defer c.Close()

	if r := mustDo(t, c, "PING"); r.Str != "PONG" {
		t.Fatalf("first PING = %v", r)
	}
	if r := mustDo(t, c, "PING"); r.Str != "Error: rate limit exceeded" {
		t.Fatalf("second PING = %v", r)
	}
}

func TestMaxConns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 1
	_, addr := startServer(t, cfg)

	first := dial(t, addr)
	defer first.Close()
	mustDo(t, first, "PING")

	second := dial(t, addr)
	defer second.Close()
	r, err := second.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if r.Str != "Error: max number of clients reached" {
		t.Fatalf("reply = %v", r)
	}
}

func TestIdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	_, addr := startServer(t, cfg)
	c := dial(t, addr)
	mustDo(t, c, "PING")

	if _, err := c.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on idle connection, got %v", err)
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	srv, addr := startServer(t, DefaultConfig())
	c := dial(t, addr)
	mustDo(t, c, "PING")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := c.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after shutdown, got %v", err)
	}
	if n := srv.ActiveConns(); n != 0 {
		t.Fatalf("%d connections still registered", n)
	}
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Fatal("listener still accepting after shutdown")
	}
}

type slowDispatcher struct {
	started  chan struct{}
	finished atomic.Bool
}

func (d *slowDispatcher) AppendDispatch(dst []byte, _ []string) []byte {
	close(d.started)
	time.Sleep(300 * time.Millisecond)
	d.finished.Store(true)
	return resp.AppendOK(dst)
}

func TestServeWaitsForCommandsInFlight(t *testing.T) {
	d := &slowDispatcher{started: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	c := dial(t, srv.Addr())
	defer c.Close()
	c.Send("SET", "k", "v")
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-d.started:
	case <-time.After(5 * time.Second):
		t.Fatal("command never dispatched")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if !d.finished.Load() {
		t.Fatal("Serve returned while a command was still executing")
	}
	if n := srv.ActiveConns(); n != 0 {
		t.Fatalf("%d connections still registered", n)
	}
	if r, err := c.Receive(); err != nil || r.Str != "OK" {
		t.Fatalf("reply = %v, %v", r, err)
	}
}

func TestShutdownTwiceWaits(t *testing.T) {
	srv, _ := startServer(t, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestServeGnet(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := DefaultConfig()
	cfg.Engine = EngineGnet
	cfg.Addr = addr
	cfg.Multicore = false
	startServer(t, cfg)

	c := dial(t, addr)
	defer c.Close()
	checkScenario(t, c)

	c.Send("SET", "k", "v")
	c.SendRaw([]byte("GET k\r\n"))
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	for i, w := range []string{"OK", `"v"`} {
		r, err := c.Receive()
		if err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
		if r.String() != w {
			t.Errorf("reply %d = %q, want %q", i, r.String(), w)
		}
	}
}

func TestLimiter(t *testing.T) {
	if l := newLimiter(0); l != nil || !l.Allow("1.2.3.4") {
		t.Fatal("disabled limiter must allow everything")
	}
	l := newLimiter(2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst not honoured")
	}
	if l.Allow("a") {
		t.Fatal("third command within the same instant allowed")
	}
	if !l.Allow("b") {
		t.Fatal("limits are per IP")
	}
}

func TestLimiterPrune(t *testing.T) {
	l := newLimiter(2)
	l.Allow("a")
	l.Allow("b")

	if n := l.pruneAt(time.Now()); n != 0 {
		t.Fatalf("pruned %d active buckets", n)
	}
	if n := l.pruneAt(time.Now().Add(time.Hour)); n != 2 {
		t.Fatalf("pruned %d idle buckets, want 2", n)
	}
	if n := l.buckets.Size(); n != 0 {
		t.Fatalf("%d buckets left", n)
	}
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("pruned client lost its burst")
	}
	if n := newLimiter(0).prune(); n != 0 {
		t.Fatalf("disabled limiter pruned %d", n)
	}
}
