package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/amirasaad/escrow/infra/presenter"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/spf13/cobra"
)

func chatCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Inspect the chat front-end traffic",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the messages published to the presentation topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			group, _ := cmd.Flags().GetString("group")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := presenter.NewKafkaReader(cfg.Presenter.KafkaBrokers, cfg.Presenter.Topic, group)
			defer r.Close() //nolint: errcheck
			out := cmd.OutOrStdout()
			return presenter.Consume(ctx, r, func(m presentation.Message) error {
				line := fmt.Sprintf("%s → %s: %s", headerStyle.Render(string(m.Kind)), m.UserID, m.Text)
				if m.URL != "" {
					line += " " + m.URL
				}
				_, err := fmt.Fprintln(out, line)
				return err
			}, nil)
		},
	}
	tail.Flags().String("group", "escrowctl-tail", "Kafka consumer group")
	cmd.AddCommand(tail)
	return cmd
}
