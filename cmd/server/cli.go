package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VoolFI71/go-rdb/internal/client"
)

var cliCmd = &cobra.Command{
	Use:   "cli <command> [args...]",
	Short: "Send one command to a running server and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("host")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		c, err := client.Dial(addr, timeout)
		if err != nil {
			return err
		}
		defer c.Close()

		reply, err := c.Do(args...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.String())
		return nil
	},
}

func init() {
	cliCmd.Flags().String("host", "127.0.0.1:6379", "server address")
	cliCmd.Flags().Duration("timeout", 5*time.Second, "dial and reply timeout")
}
