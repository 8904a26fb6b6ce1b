package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nstehr/vimy/vimy-builder/journal"
	"github.com/nstehr/vimy/vimy-builder/queue"
)

func reportCmd() *cobra.Command {
	var (
		session string
		limit   int
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise how a journaled game's build orders ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := journal.NewConnection(&cfg.Journal)
			if err != nil {
				return err
			}
			defer journal.Close(db)
			store := journal.NewStore(db)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if list {
				return printSessions(ctx, store, limit)
			}
			if session == "" {
				if session, err = store.LatestSession(ctx); err != nil {
					return err
				}
			}
			return printOutcomes(ctx, store, session)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "session id (default: most recent)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list sessions instead of outcomes")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "sessions to list")
	return cmd
}

func printSessions(ctx context.Context, store *journal.Store, limit int) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	color.New(color.FgCyan, color.Bold).Printf("\n%d session(s)\n\n", len(sessions))

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Session", "Player", "Map", "Started", "Orders"}),
	)
	for _, s := range sessions {
		table.Append([]string{
			s.ID,
			fmt.Sprintf("%d", s.Player),
			s.MapName,
			s.StartedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d", s.Orders),
		})
	}
	table.Render()
	return nil
}

func printOutcomes(ctx context.Context, store *journal.Store, session string) error {
	outcomes, err := store.Outcomes(ctx, session)
	if err != nil {
		return err
	}
	color.New(color.FgCyan, color.Bold).Printf("\nSession %s\n\n", session)
	if len(outcomes) == 0 {
		fmt.Println("no orders recorded")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Unit", "Outcome", "Orders", "Avg retries"}),
	)
	var total, completed int64
	for _, o := range outcomes {
		total += o.Count
		if o.Reason == string(queue.ReasonCompleted) {
			completed += o.Count
		}
		table.Append([]string{
			o.UnitType,
			o.Reason,
			fmt.Sprintf("%d", o.Count),
			fmt.Sprintf("%.2f", o.Retries),
		})
	}
	table.Render()

	summary := color.New(color.FgGreen, color.Bold)
	if completed*2 < total {
		summary = color.New(color.FgYellow, color.Bold)
	}
	summary.Printf("\n%d of %d orders completed\n", completed, total)
	return nil
}
