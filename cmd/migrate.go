package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	"worker-pipeline/server"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the job tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server.SetupLogger(config)
			repo, db, err := openRepo(ctx, config)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repo.AutoMigrate(ctx); err != nil {
				return err
			}
			zerolog.Ctx(ctx).Info().Msg("migration complete")
			return nil
		},
	}
}
