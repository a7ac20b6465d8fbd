package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/progress"
)

const maxHistoryDays = 366

// getDashboard returns targets, today's snapshot, the most recent snapshot,
// remaining calories and the challenge.
// GET /api/dashboard?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getDashboard(c *gin.Context) {
	today, ok := h.dateParam(c, "date")
	if !ok {
		return
	}

	d, err := h.svc.Dashboard(c.Request.Context(), c.GetString("user_id"), today)
	if err != nil {
		h.engineError(c, err, "failed to build dashboard")
		return
	}
	c.JSON(http.StatusOK, d)
}

// getHistory returns snapshots newest first. since takes precedence; otherwise
// the window is the last days days before date (inclusive of both ends).
// GET /api/progress/history?since=YYYY-MM-DD | ?days=N&date=YYYY-MM-DD.
func (h *Handler) getHistory(c *gin.Context) {
	since := c.Query("since")
	if since != "" {
		if err := model.ValidateDate(since); err != nil {
			apiError(c, http.StatusBadRequest, "invalid since, expected YYYY-MM-DD")
			return
		}
	} else {
		days := h.historyDays
		if s := c.Query("days"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > maxHistoryDays {
				apiError(c, http.StatusBadRequest, "days must be between 1 and 366")
				return
			}
			days = n
		}
		today, ok := h.dateParam(c, "date")
		if !ok {
			return
		}
		var err error
		if since, err = progress.WindowStart(today, days); err != nil {
			h.engineError(c, err, "failed to fetch history")
			return
		}
	}

	snaps, err := h.svc.History(c.Request.Context(), c.GetString("user_id"), since)
	if err != nil {
		h.engineError(c, err, "failed to fetch history")
		return
	}
	c.JSON(http.StatusOK, historyResponse{Since: since, Snapshots: snaps})
}

// patchProgress records directly entered day metrics (water, sleep, training,
// energy...). Nutrition totals are owned by the meal ledger and can't be set here.
// PATCH /api/progress/:date.
func (h *Handler) patchProgress(c *gin.Context) {
	date := c.Param("date")
	if err := model.ValidateDate(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	var body progress.MetricUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.svc.RecordMetrics(c.Request.Context(), c.GetString("user_id"), date, body)
	if err != nil {
		h.engineError(c, err, "failed to record metrics")
		return
	}
	c.JSON(http.StatusOK, snap)
}
