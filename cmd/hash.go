package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/scenario"
)

func newHashCommand() *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the scenario identity of an input event",
		Long: `Parses an input event and prints the hash runs use to find an already
stored scenario. Events that differ only in keys outside the stored columns
hash alike.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := readEvent(eventPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			sc, err := scenario.Parse(event, scenario.DefaultSettings())
			if err != nil {
				return err
			}

			h := scenario.Hash(sc)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scenario = %s\n", sc)
			fmt.Fprintf(out, "hash     = %d\n", scenario.StorageHash(h))
			fmt.Fprintf(out, "hex      = %016x\n", h)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "", "input event file, JSON or YAML (- for stdin)")
	return cmd
}
