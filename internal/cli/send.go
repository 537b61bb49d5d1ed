package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunoamancio/Smith/internal/chat"
	"github.com/brunoamancio/Smith/internal/config"
)

func newSendCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message to the agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if cfg.Endpoint == "" {
				return fmt.Errorf("no endpoint configured (set endpoint in %s or pass --endpoint)", paths.Config)
			}

			orch := chat.NewOrchestrator(gatewayFactory(cfg), settingsFromConfig(cfg), cfg.Token, log)
			defer orch.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			before := len(orch.Snapshot().History)
			if err := orch.Send(ctx, message); err != nil {
				return err
			}

			snap := orch.Snapshot()
			for _, msg := range snap.History[before:] {
				if msg.Role == chat.RoleAssistant || msg.Role == chat.RoleSystem {
					fmt.Println(msg.Content)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "ACP endpoint URL (overrides config)")
	return cmd
}
