package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tasksync/tasksync/internal/client"
	"github.com/tasksync/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes now",
	Long: `Replay every queued change against the task service, oldest first.

Replay stops at the first failure and keeps the failed change and everything
after it queued for the next attempt. Every other command also replays
leftovers when it finds the service reachable.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		if !s.client.Monitor.Online() {
			info, _ := s.client.Info(ctx)
			fail("task service unreachable; %d changes still queued", info.Pending)
		}
		if err := s.client.Sync(ctx); err != nil {
			fail("%v", err)
		}

		info, err := s.client.Info(ctx)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("Synced. %d changes pending\n", info.Pending)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue state",
	Long: `Show whether the task service is reachable, how many changes are queued,
how many offline-created tasks have been given server ids, and how many tasks
are cached. Nothing is replayed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeInspect, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		info, err := s.client.Info(ctx)
		if err != nil {
			fail("%v", err)
		}
		if err := writeInfo(info, format); err != nil {
			fail("%v", err)
		}
	},
}

func writeInfo(info client.Info, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(info)
	case "text":
		u := ui.NewRenderer(os.Stdout, ui.IsTerminal(os.Stdout))
		fmt.Println(u.Status(info.Status))
		fmt.Printf("Pending changes: %d\n", info.Pending)
		fmt.Printf("Resolved ids:    %d\n", info.Mapped)
		fmt.Printf("Cached tasks:    %d\n", info.Cached)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(syncCmd, statusCmd)
}
