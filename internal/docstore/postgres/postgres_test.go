//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/docstore/storetest"
)

var testPool *pgxpool.Pool

// TestMain starts a throwaway Postgres and applies db/*.sql before the suite runs.
func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "nutrition",
			"POSTGRES_PASSWORD": "nutrition",
			"POSTGRES_DB":       "nutrition",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer container.Terminate(ctx)

		host, err := container.Host(ctx)
		if err != nil {
			fmt.Printf("Failed to get container host: %v\n", err)
			return 1
		}
		port, err := container.MappedPort(ctx, "5432")
		if err != nil {
			fmt.Printf("Failed to get container port: %v\n", err)
			return 1
		}
		dsn := fmt.Sprintf("postgres://nutrition:nutrition@%s:%s/nutrition?sslmode=disable", host, port.Port())

		testPool, err = Open(ctx, dsn)
		if err != nil {
			fmt.Printf("Failed to connect: %v\n", err)
			return 1
		}
		defer testPool.Close()

		if err := applyMigrations(ctx, testPool); err != nil {
			fmt.Printf("Failed to migrate: %v\n", err)
			return 1
		}
		return m.Run()
	}()
	os.Exit(code)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "db", "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migration files found")
	}
	sort.Strings(files)
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		_, err := testPool.Exec(context.Background(), "TRUNCATE documents")
		require.NoError(t, err)
		return New(testPool, zerolog.Nop())
	})
}
