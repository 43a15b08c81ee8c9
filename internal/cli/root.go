// Package cli holds the cobra commands of the agentnotify binary.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nhle/agent-notify/internal/model"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "agentnotify",
		Short:         "Assistant notifications in your terminal",
		Long:          "agentnotify polls the assistant backend for notifications, keeps a local history and raises desktop alerts.",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", model.DefaultConfigPath(), "Path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newTestCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newReadCmd(opts))
	cmd.AddCommand(newReadAllCmd(opts))
	cmd.AddCommand(newClearCmd(opts))
	cmd.AddCommand(newPermissionCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
