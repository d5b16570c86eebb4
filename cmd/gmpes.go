package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
)

func newGMPEsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gmpes",
		Short: "List the available intensity prediction equations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Source", "Distance (km)", "Magnitude", "Reference"})

			for _, m := range gmpe.DefaultRegistry().List() {
				t.AppendRow(table.Row{
					m.ID(),
					m.Name(),
					m.SourceType(),
					m.DistanceBounds(),
					m.MagnitudeBounds(),
					m.Reference(),
				})
			}

			t.Render()
			return nil
		},
	}
}
