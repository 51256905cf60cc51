package cmd

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	"worker-pipeline/server"
	"worker-pipeline/service"
)

func enqueue(config *config.Config) *cobra.Command {
	var fileID, ownerID, jobType string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "queue a processing job for an uploaded file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := uuid.Parse(fileID)
			if err != nil {
				return fmt.Errorf("invalid --file-id: %w", err)
			}
			oid, err := uuid.Parse(ownerID)
			if err != nil {
				return fmt.Errorf("invalid --owner-id: %w", err)
			}

			ctx := server.SetupLogger(config)
			repo, db, err := openRepo(ctx, config)
			if err != nil {
				return err
			}
			defer db.Close()

			job, err := service.NewSubmitService(repo).Submit(ctx, fid, oid, jobType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "file-id", "", "id of the uploaded file")
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "id of the user that owns the file")
	cmd.Flags().StringVar(&jobType, "type", "", "EXTRACT | OCR | CLASSIFY | EMBED | SUMMARIZE | STUDENT_RECORD_ANALYZE")
	_ = cmd.MarkFlagRequired("file-id")
	_ = cmd.MarkFlagRequired("owner-id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
