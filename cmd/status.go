package cmd

import (
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	"worker-pipeline/server"
	"worker-pipeline/service"
)

func status(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "print a job and its outputs as json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			ctx := server.SetupLogger(config)
			repo, db, err := openRepo(ctx, config)
			if err != nil {
				return err
			}
			defer db.Close()

			job, err := service.NewSubmitService(repo).Status(ctx, id)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}
}
