package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tasksync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long: `Write the default configuration as TOML to path (default
~/.tasksync/config.toml). An existing file is never overwritten.

Every key can also be set through the environment, for example
TASKSYNC_SERVER_BASE_URL=http://tasks.internal:8080.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fail("%v", err)
		}
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
