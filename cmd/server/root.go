package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VoolFI71/go-rdb/internal/config"
	"github.com/VoolFI71/go-rdb/internal/handler"
	"github.com/VoolFI71/go-rdb/internal/logging"
	"github.com/VoolFI71/go-rdb/internal/persist"
	"github.com/VoolFI71/go-rdb/internal/server"
	"github.com/VoolFI71/go-rdb/internal/storage"
)

const Version = "0.3.0"

// janitorScanLimit bounds the deadlines inspected per shard and sweep.
const janitorScanLimit = 20

var expiredKeys = metrics.NewCounter(`rdb_expired_keys_total`)

var (
	rootCmd = &cobra.Command{
		Use:   "rdb-server [port]",
		Short: "in-memory key-value server speaking RESP",
		Long: fmt.Sprintf(`rdb-server (v%s)

An in-memory key-value store for strings, lists and hashes with key
expiration and text snapshots, compatible with Redis clients.
Flags can also be set with RDB_<FLAG> environment variables
(e.g. RDB_DUMP_FILE=/var/lib/rdb/dump.my_rdb) or in a .env file.`, Version),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runServer,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rdb-server",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rdb-server v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(config.Init)
	config.SetupFlags(rootCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(benchCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd, args)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st := storage.New()
	handlerOpts := []handler.Option{handler.WithLogger(log.With("component", "handler"))}

	var sched *persist.Scheduler
	if cfg.DumpFile != "" {
		snapLog := log.With("component", "snapshot")
		loaded, skipped, err := persist.LoadOrEmpty(st, cfg.DumpFile)
		if err != nil {
			snapLog.Errorw("loading snapshot failed, starting empty", "path", cfg.DumpFile, "error", err)
		} else {
			snapLog.Infow("snapshot loaded", "path", cfg.DumpFile, "keys", loaded, "skipped", skipped)
		}
		sched = persist.NewScheduler(st, cfg.DumpFile, cfg.SaveInterval, snapLog)
		handlerOpts = append(handlerOpts, handler.WithSaver(sched))
	}

	srv := server.New(server.Config{
		Addr:            cfg.ListenAddr(),
		Engine:          cfg.Engine,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		RateLimit:       cfg.RateLimit,
		MaxConns:        cfg.MaxConns,
		Multicore:       true,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handler.New(st, handlerOpts...), log.With("component", "server"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		st.RunJanitor(gctx, cfg.JanitorInterval, janitorScanLimit, func(n int) {
			expiredKeys.Add(n)
		})
		return nil
	})
	if sched != nil {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}
	if cfg.MetricsAddr != "" {
		startMetrics(gctx, g, cfg.MetricsAddr, log.With("component", "metrics"))
	}

	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		log.Infow("shutdown signal received")
	}

	if sched != nil {
		if serr := sched.Save(); serr != nil {
			log.Errorw("final snapshot failed", "path", cfg.DumpFile, "error", serr)
		} else {
			log.Infow("final snapshot written", "path", cfg.DumpFile)
		}
	}
	return err
}

// startMetrics serves /metrics in the Prometheus text format and the pprof
// handlers until ctx is done.
func startMetrics(ctx context.Context, g *errgroup.Group, addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Infow("metrics endpoint started", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	})
}
