package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/gamejobs-crawler/internal/stats"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarizes the postings in the store",
		Long: `Reads every stored posting and reports totals, unique companies (raw and
normalized) and per-tag counts. Flags the data as suspicious when every posting
has a different company name.`,
		RunE: runStatsCommand,
	}
	cmd.Flags().Bool("json", false, "print the summary as JSON")
	return cmd
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	postings, err := appInstance.Store().ListPostings(cmd.Context())
	if err != nil {
		return fmt.Errorf("list postings: %w", err)
	}
	summary := stats.Summarize(postings)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		return nil
	}
	return printSummary(out, summary)
}

func printSummary(w io.Writer, s stats.Summary) error {
	counts := []struct {
		label string
		n     int
	}{
		{"total postings", s.Total},
		{"active postings", s.Active},
		{"with deadline", s.WithDeadline},
		{"companies (raw)", s.UniqueCompaniesRaw},
		{"companies (normalized)", s.UniqueCompaniesNormalized},
	}
	lines := make([]string, 0, len(counts)+len(s.Tags)+1)
	for _, c := range counts {
		lines = append(lines, fmt.Sprintf("%-24s %d", c.label+":", c.n))
	}
	if len(s.Tags) > 0 {
		lines = append(lines, "tags:")
		for _, tc := range s.Tags {
			lines = append(lines, fmt.Sprintf("  %-20s %d", tc.Tag, tc.Count))
		}
	}
	if s.Suspicious {
		lines = append(lines, "warning: every posting has a distinct company name; company extraction may be broken")
		for _, name := range s.Sample {
			lines = append(lines, "  "+name)
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
