package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunoamancio/Smith/internal/config"
)

func newAgentsCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents hosted by the endpoint",
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

			gw := gatewayFactory(cfg)(settingsFromConfig(cfg), cfg.Token)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			agents, err := gw.Agents(ctx)
			if err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}
			if len(agents) == 0 {
				fmt.Println("no agents available")
				return nil
			}
			for _, a := range agents {
				if a.Description != "" {
					fmt.Printf("%s\t%s\n", a.Name, a.Description)
				} else {
					fmt.Println(a.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "ACP endpoint URL (overrides config)")
	return cmd
}
