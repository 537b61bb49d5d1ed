package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunoamancio/Smith/internal/chat"
	"github.com/brunoamancio/Smith/internal/config"
	"github.com/brunoamancio/Smith/internal/store"
)

func newChatCmd() *cobra.Command {
	var (
		endpoint string
		model    string
		archive  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if model != "" {
				cfg.Agent.Model = model
			}
			if cfg.Endpoint == "" {
				return fmt.Errorf("no endpoint configured (set endpoint in %s or pass --endpoint)", paths.Config)
			}

			arch, closeArchive, err := openArchive(cfg)
			if err != nil {
				return err
			}
			defer closeArchive()

			orch := chat.NewOrchestrator(gatewayFactory(cfg), settingsFromConfig(cfg), cfg.Token, log)
			defer orch.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printed := printTranscript(orch.Snapshot(), 0)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "exit" || line == "quit" {
					break
				}

				if err := orch.Send(ctx, line); err != nil {
					log.Debug().Err(err).Msg("send failed")
				}
				printed = printTranscript(orch.Snapshot(), printed)

				if ctx.Err() != nil {
					break
				}
			}

			id, err := archiveOnExit(arch, archive, cfg.Endpoint, orch.Snapshot())
			if err != nil {
				log.Warn().Err(err).Msg("archiving conversation failed")
			} else if id != "" {
				fmt.Printf("conversation archived as %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "ACP endpoint URL (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "model name (overrides config)")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive the conversation on exit")
	return cmd
}

// archiveOnExit saves the conversation into the configured store, but
// only when the user asked for it. Returns the archive id, or "" when
// nothing was saved.
func archiveOnExit(arch store.Archive, requested bool, endpoint string, snap chat.Snapshot) (string, error) {
	if !requested {
		return "", nil
	}
	if arch == nil {
		return "", fmt.Errorf("archive requested but archive.store is none")
	}
	return arch.Save(endpoint, snap)
}

// printTranscript prints transcript entries past the already-printed
// mark and returns the new mark. User entries are skipped; the user
// just typed them.
func printTranscript(snap chat.Snapshot, from int) int {
	for _, msg := range snap.History[from:] {
		switch msg.Role {
		case chat.RoleSystem:
			fmt.Printf("[system] %s\n", msg.Content)
		case chat.RoleAssistant:
			agent := snap.AgentName
			if agent == "" {
				agent = "agent"
			}
			fmt.Printf("[%s] %s\n", agent, msg.Content)
		}
	}
	return len(snap.History)
}
