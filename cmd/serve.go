package cmd

import (
	"github.com/spf13/cobra"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/bootstrap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return bootstrap.Start(cmd.Context(), cfg)
		},
	}
}
