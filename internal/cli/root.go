// Package cli wires the Smith commands: an interactive chat, one-shot
// sends, and endpoint diagnostics.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/brunoamancio/Smith/internal/config"
	"github.com/brunoamancio/Smith/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smith",
		Short: "Smith is a chat client for Agent Client Protocol endpoints",
		Long:  "Smith connects a chat transcript to an external ACP agent service: JSON-RPC calls, a per-session update stream, and a synchronous run surface.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if errs := config.Validate(cfg); len(errs) > 0 {
				return errors.Join(errs...)
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.New(nil, logging.Options{
				Level: level,
				Style: cfg.Logging.Style,
				File:  cfg.Logging.File,
			})
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.smith/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAgentsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
