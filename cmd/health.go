package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/realerich/marvin-memory/db"
	"github.com/realerich/marvin-memory/internal/config"
	"github.com/realerich/marvin-memory/internal/database"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend connectivity and queue backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				st := a.pool.Health(ctx)

				queued := 0
				if n, err := a.queue.Len(); err == nil {
					queued = n
				}

				out, err := json.MarshalIndent(struct {
					database.HealthStatus
					QueuedWrites int `json:"queued_writes"`
				}{st, queued}, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding health status: %w", err)
				}
				fmt.Println(string(out))

				if st.Status != database.StatusHealthy {
					return fmt.Errorf("backend is %s", st.Status)
				}
				return nil
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := db.Migrate(cfg.PostgresURL()); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			fmt.Println("schema is up to date")
			return nil
		},
	}
}
