package main

import (
	"fmt"

	"github.com/ashureev/llama-relay/internal/domain"
	"github.com/ashureev/llama-relay/internal/export"
	"github.com/spf13/cobra"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show <session-key>",
	Short: "Print one transcript",
	Long: `Print a stored transcript as JSON, YAML or Markdown.

Session keys are listed by "relayctl list".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(showFormat)
		if err != nil {
			return err
		}

		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		key := domain.SessionKey(args[0])
		transcript, err := repo.Load(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to load transcript %s: %w", key, err)
		}
		if transcript.Len() == 0 {
			return fmt.Errorf("transcript not found: %s", key)
		}

		return exporter.Export(export.Document{Key: key, Turns: transcript.Turns}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "md", "Output format: json, yaml or md")
}
