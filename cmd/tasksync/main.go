// Command tasksync manages tasks against a remote task service and keeps
// working while the service is unreachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	forceOffline bool
)

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Offline-capable task client",
	Long: `tasksync creates, updates and deletes tasks on a remote task service.

While the service is unreachable every change is applied to a local cache and
queued. Queued changes are replayed in order as soon as the service answers
again, and tasks created offline get their server ids back.

Connectivity is checked through the service's health endpoint. Creating the
offline file (see "tasksync config init") forces offline mode.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.tasksync/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "treat the task service as unreachable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fail reports err the way every command does and exits.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
