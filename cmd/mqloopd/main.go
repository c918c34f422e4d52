// Command mqloopd drives a single supervised process through mqloop's
// event loop, the way cmd/warren wires cobra subcommands onto the
// library packages it orchestrates.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvimrt/mqloop/internal/config"
	"github.com/nvimrt/mqloop/internal/mlog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mqloopd",
	Short: "mqloopd drives a cooperative multi-level event queue",
	Long: `mqloopd is a small daemon built on mqloop's MultiQueue/EventLoop
primitives: it supervises one child process, bridging its stdout, stderr,
exit status, and OS signals onto a single-threaded event loop the way
Neovim's own event loop multiplexes RPC, jobs, signals, timers, and UI
input.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a runtime config YAML file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging(cmd *cobra.Command) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	mlog.Init(mlog.Config{
		Level:      mlog.Level(logLevel),
		JSONOutput: logJSON,
	})
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
