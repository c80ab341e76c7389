package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listLimit int

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transcripts",
	Long:  `List stored transcripts, most recently updated first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		summaries, err := repo.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list transcripts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No transcripts found.")
			return nil
		}
		if listLimit > 0 && len(summaries) > listLimit {
			summaries = summaries[:listLimit]
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d transcript(s)", len(summaries))))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTURNS\tUPDATED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				keyStyle.Render(s.Key.String()),
				countStyle.Render(fmt.Sprintf("%d", s.Turns)),
				dateStyle.Render(formatUpdated(s.UpdatedAt)),
			)
		}
		return w.Flush()
	},
}

func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most this many transcripts")
}
