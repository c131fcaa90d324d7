package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/VoolFI71/go-rdb/internal/bench"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a SET/GET load test against a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		opts := bench.Options{}
		opts.Addr, _ = flags.GetString("host")
		opts.Ops, _ = flags.GetInt("ops")
		opts.Clients, _ = flags.GetInt("clients")
		opts.Pipeline, _ = flags.GetInt("pipeline")
		opts.Timeout, _ = flags.GetDuration("timeout")

		out := cmd.OutOrStdout()
		for _, run := range []struct {
			name string
			op   bench.Op
		}{{"SET", bench.SetOp}, {"GET", bench.GetOp}} {
			res, err := bench.Run(cmd.Context(), run.name, opts, run.op)
			res.Print(out)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	flags := benchCmd.Flags()
	flags.String("host", "127.0.0.1:6379", "server address")
	flags.Int("ops", 100000, "operations per phase")
	flags.Int("clients", 50, "concurrent connections")
	flags.Int("pipeline", 1, "commands per round trip")
	flags.Duration("timeout", 10*time.Second, "dial and reply timeout")
}
