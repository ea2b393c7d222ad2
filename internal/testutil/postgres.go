// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres launches a throwaway PostgreSQL container and returns its
// connection string. The caller must invoke terminate when done, usually
// from TestMain so one container serves the whole package.
func StartPostgres(ctx context.Context) (connStr string, terminate func(), err error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("marvin_test"),
		postgres.WithUsername("marvin"),
		postgres.WithPassword("marvin_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("starting postgres container: %w", err)
	}

	terminate = func() {
		_ = container.Terminate(context.Background())
	}

	connStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("resolving connection string: %w", err)
	}
	return connStr, terminate, nil
}
