package bench

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/VoolFI71/go-rdb/internal/handler"
	"github.com/VoolFI71/go-rdb/internal/server"
	"github.com/VoolFI71/go-rdb/internal/storage"
)

func startServer(t testing.TB) (string, *storage.Storage) {
	t.Helper()
	st := storage.New()
	cfg := server.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := server.New(cfg, handler.New(st), nil)
	go func() { _ = srv.Serve(context.Background()) }()
	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr(), st
}

func TestRun(t *testing.T) {
	addr, st := startServer(t)
	opts := Options{Addr: addr, Ops: 400, Clients: 4, Pipeline: 10, Timeout: 5 * time.Second}

	res, err := Run(context.Background(), "SET", opts, SetOp)
	if err != nil {
		t.Fatalf("Run SET: %v", err)
	}
	if res.TotalOps != 400 || res.Errors != 0 {
		t.Fatalf("SET results: %+v", res)
	}
	if st.Len() != 400 {
		t.Fatalf("store holds %d keys, want 400", st.Len())
	}

	res, err = Run(context.Background(), "GET", opts, GetOp)
	if err != nil {
		t.Fatalf("Run GET: %v", err)
	}
	if res.TotalOps != 400 || res.MinLatency > res.MaxLatency || res.P50Latency > res.P99Latency {
		t.Fatalf("GET results: %+v", res)
	}

	var out bytes.Buffer
	res.Print(&out)
	if !strings.Contains(out.String(), "=== GET ===") {
		t.Fatalf("Print output: %q", out.String())
	}
}

func TestRunDialError(t *testing.T) {
	opts := Options{Addr: "127.0.0.1:1", Ops: 10, Clients: 1, Timeout: time.Second}
	if _, err := Run(context.Background(), "SET", opts, SetOp); err == nil {
		t.Fatal("expected dial error")
	}
}

func BenchmarkSET(b *testing.B) {
	addr, _ := startServer(b)
	opts := Options{Addr: addr, Ops: b.N, Clients: 1, Pipeline: 1, Timeout: 5 * time.Second}
	b.ResetTimer()
	if _, err := Run(context.Background(), "SET", opts, SetOp); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkSETPipelined(b *testing.B) {
	addr, _ := startServer(b)
	opts := Options{Addr: addr, Ops: b.N, Clients: 4, Pipeline: 64, Timeout: 5 * time.Second}
	b.ResetTimer()
	if _, err := Run(context.Background(), "SET", opts, SetOp); err != nil {
		b.Fatal(err)
	}
}
