package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/account"
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

const serviceName = "nutrition-tracker-api"

func main() {
	// .env is optional in deployed environments.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(serviceName, cfg.LogLevel)
	cfg.LogSummary(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Stack().Msg("server exited")
	}
}

// newHandler wires the engine on top of store.
func newHandler(store docstore.Store, queue *keyqueue.Queue, cfg *config.Config, log zerolog.Logger, now func() time.Time) *Handler {
	svc := tracker.New(store, queue,
		tracker.WithClock(now),
		tracker.WithRetryPolicy(cfg.Retry),
		tracker.WithLogger(log),
	)
	return &Handler{
		svc:         svc,
		accounts:    account.New(store, svc.Profiles(), now),
		foods:       foods.New(store),
		store:       store,
		now:         now,
		historyDays: cfg.HistoryDays,
		log:         log.With().Str("component", "http").Logger(),
	}
}

func newRouter(h *Handler, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error().Interface("panic", rec).Str("path", c.FullPath()).Msg("handler panicked")
		apiError(c, http.StatusInternalServerError, "internal error")
		c.Abort()
	}), requestLogger(log))
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)
	return router
}

// scheduleReconcile runs a reconciliation pass over the trailing window on
// cfg.ReconcileSchedule. It returns nil when no schedule is configured.
func scheduleReconcile(cfg *config.Config, rec *reconcile.Reconciler, log zerolog.Logger) (*cron.Cron, error) {
	if cfg.ReconcileSchedule == "" {
		log.Info().Msg("scheduled reconciliation disabled")
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.ReconcileSchedule, func() {
		since, err := model.AddDays(model.Today(time.Now()), -cfg.ReconcileWindowDays)
		if err != nil {
			log.Error().Err(err).Msg("reconcile window")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		rep, err := rec.Run(ctx, since)
		if err != nil {
			log.Error().Err(err).Str("since", since).Msg("reconcile pass aborted")
			return
		}
		log.Info().
			Str("since", rep.Since).
			Int("users", rep.Users).
			Int("days", rep.Days).
			Int("failures", rep.Failures).
			Dur("elapsed", rep.Elapsed).
			Msg("reconcile pass finished")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", cfg.ReconcileSchedule, err)
	}
	c.Start()
	return c, nil
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	queue := keyqueue.New(cfg.Queue, log)
	defer queue.Stop()

	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	h := newHandler(store, queue, cfg, log, time.Now)

	scheduler, err := scheduleReconcile(cfg, reconcile.New(store, h.svc, log), log)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newRouter(h, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
