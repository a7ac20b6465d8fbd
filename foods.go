package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// getFoods lists the shared food bank, filtered by a case-insensitive name
// match when q is given. Returns an empty array (not null) when nothing matches.
// GET /api/foods?q=term.
func (h *Handler) getFoods(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	list, err := h.foods.Search(c.Request.Context(), q)
	if err != nil {
		h.engineError(c, err, "failed to fetch foods")
		return
	}
	c.JSON(http.StatusOK, foodsResponse{Query: q, Foods: list})
}
