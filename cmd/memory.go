package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/realerich/marvin-memory/internal/memory"
)

func newAddCmd() *cobra.Command {
	var (
		category   string
		importance float64
		memType    string
		session    string
		source     string
	)

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a new memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				id, err := a.store.Add(ctx, memory.AddInput{
					SessionKey: session,
					Content:    args[0],
					Category:   category,
					Type:       memory.Type(memType),
					Importance: importance,
					Source:     source,
				})
				if err != nil {
					return fmt.Errorf("storing memory: %w", err)
				}
				fmt.Println(id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "memory category (default general)")
	cmd.Flags().Float64VarP(&importance, "importance", "i", 0.5, "importance in [0, 1]")
	cmd.Flags().StringVarP(&memType, "type", "t", "", "tier: short_term, long_term or user_pref (derived from importance when empty)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "session key")
	cmd.Flags().StringVar(&source, "source", "", "origin of this memory")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit   int
		session string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories with fused ranking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				var opts []memory.SearchOption
				if session != "" {
					opts = append(opts, memory.WithSession(session))
				}
				results, err := a.retriever.Search(ctx, args[0], limit, opts...)
				if err != nil {
					return fmt.Errorf("searching memories: %w", err)
				}
				if len(results) == 0 {
					fmt.Println("no matches")
					return nil
				}
				printEntries(results)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().StringVarP(&session, "session", "s", "", "restrict to one session key")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var (
		hours int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List memories from the last hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				entries, err := a.store.Recent(ctx, hours, limit)
				if err != nil {
					return fmt.Errorf("listing recent memories: %w", err)
				}
				printEntries(entries)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "how far back to look")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	return cmd
}

func newPopularCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List the most retrieved memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				entries, err := a.store.Popular(ctx, limit)
				if err != nil {
					return fmt.Errorf("listing popular memories: %w", err)
				}
				printEntries(entries)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate memory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				stats, err := a.store.Stats(ctx)
				if err != nil {
					return fmt.Errorf("loading statistics: %w", err)
				}

				fmt.Printf("Total memories:    %d\n", stats.Total)
				fmt.Printf("Avg importance:    %.2f\n", stats.AvgImportance)
				fmt.Printf("Queued writes:     %d\n", stats.QueuedWrites)
				fmt.Println("By type:")
				for k, n := range stats.ByType {
					fmt.Printf("  %-12s %d\n", k, n)
				}
				fmt.Println("By category:")
				for k, n := range stats.ByCategory {
					fmt.Printf("  %-12s %d\n", k, n)
				}
				return nil
			})
		},
	}
}

func printEntries(entries []memory.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCATEGORY\tIMP\tACCESS\tCONTENT")
	for _, e := range entries {
		content := e.Content
		if r := []rune(content); len(r) > 60 {
			content = string(r[:60]) + "…"
		}
		content = strings.ReplaceAll(content, "\n", " ")
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			e.ID, e.Type, e.Category, e.Importance, e.AccessCount, content)
	}
	w.Flush() //nolint:errcheck
}
