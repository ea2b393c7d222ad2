package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/realerich/marvin-memory/internal/memory"
)

func newCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale short term memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.store.Cleanup(ctx, days)
				if err != nil {
					return fmt.Errorf("cleaning up memories: %w", err)
				}
				fmt.Printf("removed %d memories\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "minimum age in days")
	return cmd
}

func newAutolinkCmd() *cobra.Command {
	var candidates int

	cmd := &cobra.Command{
		Use:   "autolink",
		Short: "Discover and link related memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.linker.AutoLink(ctx, candidates)
				if err != nil {
					return fmt.Errorf("linking memories: %w", err)
				}
				fmt.Printf("wrote %d links\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&candidates, "candidates", 0, "recent memories to consider (default 100)")
	return cmd
}

func newMaintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one full maintenance pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				printReport(a.maintainer.Run(ctx))
				return nil
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run maintenance on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				scheduler := memory.NewScheduler(a.maintainer, a.cfg.MaintenanceInterval, a.logger)
				scheduler.Start(ctx)
				defer scheduler.Stop()

				a.logger.Info("running", "interval", a.cfg.MaintenanceInterval)
				<-ctx.Done()
				a.logger.Info("shutting down")
				return nil
			})
		},
	}
}

func printReport(rep memory.Report) {
	fmt.Printf("promoted:        %d\n", rep.Promoted)
	fmt.Printf("removed:         %d\n", rep.Removed)
	fmt.Printf("links written:   %d\n", rep.LinksWritten)
	fmt.Printf("summarized:      %t\n", rep.Summarized)
	fmt.Printf("queue replayed:  %d\n", rep.QueueReplayed)
	fmt.Printf("queue remaining: %d\n", rep.QueueRemaining)
	fmt.Printf("health:          %s\n", rep.Health.Status)
	fmt.Printf("duration:        %s\n", rep.Duration)
	for _, e := range rep.Errors {
		fmt.Printf("error:           %s\n", e)
	}
}
