package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nstehr/vimy/vimy-builder/catalog"
)

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the build-lists of the configured catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			printCatalog(cat)
			return nil
		},
	}
}

func printCatalog(cat *catalog.Catalog) {
	title := color.New(color.FgCyan, color.Bold)
	for _, l := range cat.Lists() {
		title.Printf("\n%s (%s, min %d units, priority %.1f)\n\n", l.Name, l.Role, l.MinUnits, l.Priority)

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Unit", "Weight", "Metal", "Energy", "Cost", "When"}),
		)
		for _, e := range l.Entries {
			row := []string{e.Type, fmt.Sprintf("%.1f", e.Weight), "-", "-", "-", e.When}
			if e.Def != nil {
				row[2] = fmt.Sprintf("%.0f", e.Def.MetalCost)
				row[3] = fmt.Sprintf("%.0f", e.Def.EnergyCost)
				row[4] = fmt.Sprintf("%.1f", cat.Cost(e.Def))
			}
			table.Append(row)
		}
		table.Render()
	}
}
