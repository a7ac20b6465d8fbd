// nutrictl is the operator CLI: reconciliation passes and food bank seeding
// against the configured document store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lg/nutrition-tracker-api/internal/config"
	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/factory"
	"lg/nutrition-tracker-api/internal/foods"
	"lg/nutrition-tracker-api/internal/keyqueue"
	"lg/nutrition-tracker-api/internal/logger"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/reconcile"
	"lg/nutrition-tracker-api/internal/tracker"
)

var (
	logLevelFlag string
	rootCmd      = &cobra.Command{
		Use:          "nutrictl",
		Short:        "Operator CLI for the nutrition tracker store",
		SilenceUsage: true,
	}
)

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, fn func(store docstore.Store, cfg *config.Config, log zerolog.Logger) error) error {
	_ = godotenv.Load()
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, "nutrictl", logLevelFlag)
	store, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store, cfg, log)
}

// reconcileSince resolves --since, falling back to today minus --days.
func reconcileSince(since string, days int, now time.Time) (string, error) {
	if since != "" {
		return since, model.ValidateDate(since)
	}
	if days < 0 {
		return "", fmt.Errorf("--days must not be negative")
	}
	return model.AddDays(model.Today(now), -days)
}

func runReconcile(ctx context.Context, store docstore.Store, cfg *config.Config, log zerolog.Logger, since string, out io.Writer) error {
	queue := keyqueue.New(cfg.Queue, log)
	defer queue.Stop()
	svc := tracker.New(store, queue, tracker.WithRetryPolicy(cfg.Retry), tracker.WithLogger(log))

	rep, err := reconcile.New(store, svc, log).Run(ctx, since)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if rep.Failures > 0 {
		return fmt.Errorf("%d day(s) failed to reconcile", rep.Failures)
	}
	return nil
}

func runSeedFoods(ctx context.Context, store docstore.Store, path string, out io.Writer) error {
	list := foods.Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		list = nil
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	n, err := foods.New(store).Seed(ctx, list)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "seeded %d food(s)\n", n)
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&logLevelFlag, "log-level", "l", "info", "Log level (debug, info, warn, error)")

	// reconcile subcommand
	var since string
	var days int
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute daily totals from the meal ledgers",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := reconcileSince(since, days, time.Now())
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(store docstore.Store, cfg *config.Config, log zerolog.Logger) error {
				return runReconcile(cmd.Context(), store, cfg, log, from, cmd.OutOrStdout())
			})
		},
	}
	reconcileCmd.Flags().StringVarP(&since, "since", "s", "", "First date to reconcile (YYYY-MM-DD)")
	reconcileCmd.Flags().IntVarP(&days, "days", "d", 7, "Days back from today when --since is not set")
	rootCmd.AddCommand(reconcileCmd)

	// seed-foods subcommand
	var file string
	seedCmd := &cobra.Command{
		Use:   "seed-foods",
		Short: "Write the food bank (built-in list, or a JSON array from --file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store docstore.Store, _ *config.Config, _ zerolog.Logger) error {
				return runSeedFoods(cmd.Context(), store, file, cmd.OutOrStdout())
			})
		},
	}
	seedCmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with [{name, serving_g, calories, protein_g, carbs_g, fat_g}]")
	rootCmd.AddCommand(seedCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
