package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [date]",
		Short: "Build the daily digest (default: today)",
		Long: `Builds and stores the digest for one calendar day: decisions, open
actions, people mentioned and dominant topics. Dates use YYYY-MM-DD.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if len(args) == 1 {
				parsed, err := time.Parse("2006-01-02", args[0])
				if err != nil {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
				}
				day = parsed
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				sum, err := a.summarizer.Summarize(ctx, day)
				if err != nil {
					return fmt.Errorf("summarizing %s: %w", day.Format("2006-01-02"), err)
				}

				fmt.Printf("%s: %s\n", sum.Date.Format("2006-01-02"), sum.Content)
				printList("decisions", sum.KeyDecisions)
				printList("actions", sum.ActionItems)
				if len(sum.People) > 0 {
					fmt.Printf("people: %s\n", strings.Join(sum.People, ", "))
				}
				if len(sum.Topics) > 0 {
					fmt.Printf("topics: %s\n", strings.Join(sum.Topics, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func newSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest [query]",
		Short: "Suggest memories usually retrieved around now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				entries, err := a.tracker.SuggestEntries(ctx, query, time.Now(), limit)
				if err != nil {
					return fmt.Errorf("loading suggestions: %w", err)
				}
				if len(entries) == 0 {
					fmt.Println("no access history for this time slot yet")
					return nil
				}
				printEntries(entries)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum suggestions")
	return cmd
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, it := range items {
		fmt.Printf("  - %s\n", it)
	}
}
