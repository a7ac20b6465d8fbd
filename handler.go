package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/account"
	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/foods"
	"lg/nutrition-tracker-api/internal/keyqueue"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/tracker"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	svc         *tracker.Service
	accounts    *account.Service
	foods       *foods.Bank
	store       docstore.Store
	now         func() time.Time
	historyDays int
	log         zerolog.Logger
}

/* ─── Response helpers ────────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// engineError maps an engine error onto a status code. Validation errors
// carry their own message; anything unexpected is logged and reported with
// fallback.
func (h *Handler) engineError(c *gin.Context, err error, fallback string) {
	switch {
	case model.IsValidation(err):
		apiError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		apiError(c, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrNotOnboarded):
		apiError(c, http.StatusConflict, "onboarding not completed")
	case errors.Is(err, model.ErrAlreadyExists):
		apiError(c, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrConcurrencyConflict),
		errors.Is(err, model.ErrStoreUnavailable),
		errors.Is(err, keyqueue.ErrQueueFull),
		errors.Is(err, keyqueue.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg(fallback)
		c.Header("Retry-After", "1")
		apiError(c, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		apiError(c, http.StatusInternalServerError, fallback)
	}
}

// dateParam reads an optional YYYY-MM-DD query param, defaulting to today.
func (h *Handler) dateParam(c *gin.Context, name string) (string, bool) {
	date := c.DefaultQuery(name, model.Today(h.now()))
	if err := model.ValidateDate(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid "+name+", expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// bodyDate validates a date from a request body; empty means today.
func (h *Handler) bodyDate(c *gin.Context, date string) (string, bool) {
	if date == "" {
		return model.Today(h.now()), true
	}
	if err := model.ValidateDate(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("user_id", c.GetString("user_id")).
			Msg("request")
	}
}

// health pings the document store.
// GET /api/health (public).
func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		apiError(c, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/health", h.health)
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	api.POST("/onboarding", h.postOnboarding)
	api.GET("/meals", h.getMeals)
	api.POST("/meals", h.postMeal)
	api.DELETE("/meals/:date/:slot/:id", h.deleteMeal)
	api.GET("/dashboard", h.getDashboard)
	api.GET("/progress/history", h.getHistory)
	api.PATCH("/progress/:date", h.patchProgress)
	api.POST("/weight", h.postWeight)
	api.POST("/challenge/complete", h.postChallengeComplete)
	api.GET("/foods", h.getFoods)
}
