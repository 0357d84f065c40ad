package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/dashboard"
	"github.com/tasksync/tasksync/internal/logging"
	"github.com/tasksync/tasksync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch connectivity and sync in the background",
	Long: `Run until interrupted, probing the task service and replaying queued
changes whenever it becomes reachable.

A WebSocket dashboard broadcasts sync status, task changes and replay
progress:
  ws://127.0.0.1:<port>/ws

Messages:
- status: online, offline, syncing or error (also sent on connect)
- task_update: task created, updated or deleted
- replay: a queued change reached the task service
- stats: task counts by status and queue length`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		var server *dashboard.Server
		s, err := openSession(ctx, modeDaemon, func(s *session) error {
			port := s.cfg.Dashboard.Port
			if cmd.Flags().Changed("dashboard-port") {
				port, _ = cmd.Flags().GetInt("dashboard-port")
			}
			c := s.client

			handler := dashboard.NewHandler(nil, logging.New(s.logOut, "dashboard"))
			handler.OnStatus(c.Status())
			server = dashboard.NewServer(&dashboard.Config{
				Port:    port,
				Welcome: handler.Welcome,
				Logger:  logging.New(s.logOut, "dashboard"),
			})
			handler.Attach(server)

			c.Publisher.OnPublish(handler.OnStatus)
			c.Engine.OnReplay(handler.OnReplay)
			c.Watch(handler)

			tasks, err := c.Store.Tasks(ctx)
			if err != nil {
				return err
			}
			pending, err := c.Engine.Pending(ctx)
			if err != nil {
				return err
			}
			handler.UpdateStats(tasks, pending)

			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			return nil
		})
		if err != nil {
			if server != nil {
				server.Stop()
			}
			fail("%v", err)
		}

		u := ui.NewRenderer(os.Stdout, ui.IsTerminal(os.Stdout))
		updates, unsubscribe := s.client.Subscribe()
		defer unsubscribe()

		fmt.Printf("Dashboard: ws://%s/ws\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case st := <-updates:
				fmt.Printf("Status: %s\n", u.Status(st))
			}
		}

		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		s.Close()
	},
}

func init() {
	daemonCmd.Flags().IntP("dashboard-port", "p", 0, "dashboard port (default from config)")

	rootCmd.AddCommand(daemonCmd)
}
