package cmd

import (
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	"worker-pipeline/server"
)

func worker(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "run the job claim loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.RunWorker(config)
		},
	}
}
