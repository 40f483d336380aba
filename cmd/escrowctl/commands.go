package main

import (
	"fmt"
	"time"

	"github.com/amirasaad/escrow/infra"
	infrarepository "github.com/amirasaad/escrow/infra/repository"
	"github.com/amirasaad/escrow/pkg/app"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/middleware"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the ledger schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
			if err != nil {
				return err
			}
			if err := infrarepository.MigrateUp(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
			if err != nil {
				return err
			}
			if err := infrarepository.MigrateDown(db, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntP("steps", "n", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)
	return cmd
}

func tokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			jwtCfg := *cfg.Auth.Jwt
			if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
				jwtCfg.Expiry = ttl
			}
			token, err := middleware.GenerateToken(&jwtCfg, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to AUTH_JWT_EXPIRY)")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	flagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

func renderTrades(trades []*trade.Trade, currency string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "REFERENCE", "STATUS", "AMOUNT", "BUYER", "SELLER", "FLAG").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	for _, tr := range trades {
		flag := ""
		if tr.Flagged {
			flag = flagStyle.Render(tr.FlagReason)
		}
		t.Row(
			tr.ID.String(),
			tr.PaymentReference,
			tr.Status.String(),
			presentation.FormatAmount(tr.Amount, currency),
			tr.BuyerID,
			tr.SellerID,
			flag,
		)
	}
	return t.Render()
}

func tradesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Inspect and settle trades",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repository.TradeFilter{Archived: trade.Ptr(false)}
			statuses, _ := cmd.Flags().GetStringSlice("status")
			for _, raw := range statuses {
				s, err := trade.ParseStatus(raw)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, s)
			}
			if cmd.Flags().Changed("flagged") {
				flagged, _ := cmd.Flags().GetBool("flagged")
				filter.Flagged = &flagged
			}
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			return e.withApp(func(a *app.App) error {
				trades, err := a.Registry.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTrades(trades, a.Config.Escrow.Currency))
				return nil
			})
		},
	}
	list.Flags().StringSlice("status", []string{string(trade.StatusPaid)}, "Statuses to include")
	list.Flags().Bool("flagged", false, "Only flagged (true) or unflagged (false) trades")
	list.Flags().IntP("limit", "n", 50, "Maximum trades")
	cmd.AddCommand(list)

	release := &cobra.Command{
		Use:   "release [trade-id]",
		Short: "Release a paid trade as an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid trade id: %w", err)
			}
			operator, _ := cmd.Flags().GetString("as")
			return e.withApp(func(a *app.App) error {
				res, err := a.Release.Release(cmd.Context(), id, operator)
				if err != nil {
					return err
				}
				currency := a.Config.Escrow.Currency
				fmt.Fprintf(cmd.OutOrStdout(), "released %s: fee %s, payout %s\n", res.TradeID,
					presentation.FormatAmount(res.Fee, currency), presentation.FormatAmount(res.Payout, currency))
				return nil
			})
		},
	}
	release.Flags().String("as", "", "Operator id performing the release")
	_ = release.MarkFlagRequired("as")
	cmd.AddCommand(release)

	refund := &cobra.Command{
		Use:   "refund [trade-id]",
		Short: "Refund a paid trade to the buyer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid trade id: %w", err)
			}
			operator, _ := cmd.Flags().GetString("as")
			return e.withApp(func(a *app.App) error {
				t, err := a.Release.Refund(cmd.Context(), id, operator)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refunded %s (%s)\n", t.ID, t.PaymentReference)
				return nil
			})
		},
	}
	refund.Flags().String("as", "", "Operator id performing the refund")
	_ = refund.MarkFlagRequired("as")
	cmd.AddCommand(refund)
	return cmd
}

func archiveCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive terminal trades untouched for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app.App) error {
				olderThan := a.Config.Escrow.ArchiveAge
				if cmd.Flags().Changed("older-than") {
					olderThan, _ = cmd.Flags().GetDuration("older-than")
				}
				n, err := a.Registry.Archive(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %d trade(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().Duration("older-than", 0, "Minimum age since last update (defaults to ESCROW_ARCHIVE_AGE)")
	return cmd
}
