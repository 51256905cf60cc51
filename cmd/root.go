package cmd

import (
	"context"
	"database/sql"
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	"worker-pipeline/constant"
	"worker-pipeline/repository"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "worker-pipeline",
		Short:         "queue and process uploaded files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Validate()
		},
	}
	rootCmd.AddCommand(worker(config))
	rootCmd.AddCommand(migrate(config))
	rootCmd.AddCommand(enqueue(config))
	rootCmd.AddCommand(status(config))
	return rootCmd
}

func openRepo(ctx context.Context, cfg *config.Config) (repository.JobRepository, *sql.DB, error) {
	db, err := config.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	repo, err := repository.NewRepo(db, cfg.App.Environment == constant.EnvironmentDevelop.String())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}
