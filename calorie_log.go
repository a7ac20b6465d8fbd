package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/tracker"
)

func newMealResponse(res tracker.MealResult) mealResponse {
	return mealResponse{Entry: res.Entry, Totals: res.Totals, Stale: res.Stale()}
}

// getMeals returns the day's ledger grouped by slot. All four slots are
// always present, empty or not.
// GET /api/meals?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getMeals(c *gin.Context) {
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}

	day, err := h.svc.Meals(c.Request.Context(), c.GetString("user_id"), date)
	if err != nil {
		h.engineError(c, err, "failed to fetch meals")
		return
	}
	c.JSON(http.StatusOK, day)
}

// postMeal appends an entry to a slot and returns it with the refreshed day
// totals. If the totals could not be refreshed the meal is still stored and
// the response says stale=true.
// POST /api/meals.
func (h *Handler) postMeal(c *gin.Context) {
	var body createMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, ok := h.bodyDate(c, body.Date)
	if !ok {
		return
	}
	// Reject unknown slots with 400 rather than storing an orphaned entry.
	if !body.Slot.Valid() {
		apiError(c, http.StatusBadRequest, "slot must be breakfast, lunch, snack or dinner")
		return
	}

	res, err := h.svc.AddMeal(c.Request.Context(), c.GetString("user_id"), date, body.Slot, body.input())
	if err != nil {
		h.engineError(c, err, "failed to add meal")
		return
	}
	c.JSON(http.StatusCreated, newMealResponse(res))
}

// deleteMeal removes an entry. Removing an id that is not there succeeds and
// changes nothing.
// DELETE /api/meals/:date/:slot/:id.
func (h *Handler) deleteMeal(c *gin.Context) {
	date := c.Param("date")
	if err := model.ValidateDate(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	slot := model.Slot(c.Param("slot"))
	if !slot.Valid() {
		apiError(c, http.StatusBadRequest, "slot must be breakfast, lunch, snack or dinner")
		return
	}

	res, err := h.svc.RemoveMeal(c.Request.Context(), c.GetString("user_id"), date, slot, c.Param("id"))
	if err != nil {
		h.engineError(c, err, "failed to remove meal")
		return
	}
	c.JSON(http.StatusOK, newMealResponse(res))
}
