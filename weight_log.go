package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// postWeight records a weigh-in: the profile weight (which moves BMI and
// targets) and the day's snapshot weight.
// POST /api/weight. Body: { "date": "YYYY-MM-DD", "weight_kg": 72.4 }.
func (h *Handler) postWeight(c *gin.Context) {
	var body weightRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, ok := h.bodyDate(c, body.Date)
	if !ok {
		return
	}
	if body.WeightKG <= 0 || body.WeightKG > 999.9 {
		apiError(c, http.StatusBadRequest, "weight_kg must be between 0 and 999.9")
		return
	}

	res, err := h.svc.RecordWeight(c.Request.Context(), c.GetString("user_id"), date, body.WeightKG)
	if err != nil {
		h.engineError(c, err, "failed to record weight")
		return
	}
	c.JSON(http.StatusOK, res)
}

// postChallengeComplete marks a challenge day done. Completing the same day
// twice is a no-op.
// POST /api/challenge/complete. Body: { "date": "YYYY-MM-DD" } (defaults to today).
func (h *Handler) postChallengeComplete(c *gin.Context) {
	var body challengeRequest
	// An empty body means today.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			apiError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	date, ok := h.bodyDate(c, body.Date)
	if !ok {
		return
	}

	ch, err := h.svc.CompleteChallengeDay(c.Request.Context(), c.GetString("user_id"), date)
	if err != nil {
		h.engineError(c, err, "failed to complete challenge day")
		return
	}
	c.JSON(http.StatusOK, ch)
}
