// Package bench drives SET and GET load against a running server and reports
// throughput and batch latency percentiles.
package bench

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VoolFI71/go-rdb/internal/client"
)

type Options struct {
	Addr     string
	Ops      int
	Clients  int
	Pipeline int // commands per round trip, 1 disables pipelining
	Timeout  time.Duration
}

type Results struct {
	Name         string
	TotalOps     int64
	Errors       int64
	Duration     time.Duration
	OpsPerSecond float64
	AvgLatency   time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration
	P50Latency   time.Duration
	P95Latency   time.Duration
	P99Latency   time.Duration
}

// Op queues the command for operation i on c.
type Op func(c *client.Client, i int)

func SetOp(c *client.Client, i int) {
	c.Send("SET", "key"+strconv.Itoa(i), "value"+strconv.Itoa(i))
}

func GetOp(c *client.Client, i int) {
	c.Send("GET", "key"+strconv.Itoa(i))
}

// Run spreads opts.Ops operations over opts.Clients connections. Latency is
// measured per batch of opts.Pipeline commands.
func Run(ctx context.Context, name string, opts Options, op Op) (Results, error) {
	if opts.Clients <= 0 {
		opts.Clients = 1
	}
	if opts.Pipeline <= 0 {
		opts.Pipeline = 1
	}
	opsPerClient := opts.Ops / opts.Clients
	if opsPerClient == 0 {
		opsPerClient = 1
	}

	var (
		totalOps  int64
		errs      int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.Ops/opts.Pipeline+1)
	)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < opts.Clients; id++ {
		g.Go(func() error {
			c, err := client.Dial(opts.Addr, opts.Timeout)
			if err != nil {
				return fmt.Errorf("client %d: %w", id, err)
			}
			defer c.Close()

			local := make([]time.Duration, 0, opsPerClient/opts.Pipeline+1)
			next := id * opsPerClient
			for remaining := opsPerClient; remaining > 0 && ctx.Err() == nil; {
				batch := min(opts.Pipeline, remaining)
				batchStart := time.Now()
				for j := 0; j < batch; j++ {
					op(c, next+j)
				}
				failed, err := roundTrip(c, batch)
				if err != nil {
					return fmt.Errorf("client %d: %w", id, err)
				}
				local = append(local, time.Since(batchStart))
				atomic.AddInt64(&totalOps, int64(batch-failed))
				atomic.AddInt64(&errs, int64(failed))
				next += batch
				remaining -= batch
			}

			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	return summarize(name, time.Since(start), totalOps, errs, latencies), err
}

// roundTrip flushes the queued batch and reads its replies, counting error
// replies.
func roundTrip(c *client.Client, batch int) (failed int, err error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}
	for i := 0; i < batch; i++ {
		r, err := c.Receive()
		if err != nil {
			return failed, err
		}
		if r.Err() != nil {
			failed++
		}
	}
	return failed, nil
}

func summarize(name string, d time.Duration, ops, errs int64, latencies []time.Duration) Results {
	res := Results{Name: name, TotalOps: ops, Errors: errs, Duration: d}
	if d > 0 {
		res.OpsPerSecond = float64(ops) / d.Seconds()
	}
	if len(latencies) == 0 {
		return res
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	res.AvgLatency = total / time.Duration(len(latencies))
	res.MinLatency = latencies[0]
	res.MaxLatency = latencies[len(latencies)-1]
	res.P50Latency = latencies[len(latencies)*50/100]
	res.P95Latency = latencies[len(latencies)*95/100]
	res.P99Latency = latencies[len(latencies)*99/100]
	return res
}

func (r Results) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== %s ===\n", r.Name)
	fmt.Fprintf(w, "Operations:   %d (errors: %d)\n", r.TotalOps, r.Errors)
	fmt.Fprintf(w, "Duration:     %v\n", r.Duration)
	fmt.Fprintf(w, "Throughput:   %.2f ops/s\n", r.OpsPerSecond)
	fmt.Fprintf(w, "Latency avg:  %v\n", r.AvgLatency)
	fmt.Fprintf(w, "Latency min:  %v\n", r.MinLatency)
	fmt.Fprintf(w, "Latency max:  %v\n", r.MaxLatency)
	fmt.Fprintf(w, "Latency p50:  %v\n", r.P50Latency)
	fmt.Fprintf(w, "Latency p95:  %v\n", r.P95Latency)
	fmt.Fprintf(w, "Latency p99:  %v\n", r.P99Latency)
}
