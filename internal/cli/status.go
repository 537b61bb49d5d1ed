package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunoamancio/Smith/internal/chat"
	"github.com/brunoamancio/Smith/internal/config"
)

func newStatusCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			result := orch.TestConnection(ctx, settingsFromConfig(cfg), cfg.Token)
			if result.OK {
				fmt.Printf("OK: %s\n", result.Detail)
				return nil
			}
			return fmt.Errorf("connection test failed: %s", result.Detail)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "ACP endpoint URL (overrides config)")
	return cmd
}
