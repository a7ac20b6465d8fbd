package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lg/nutrition-tracker-api/internal/account"
	"lg/nutrition-tracker-api/internal/model"
)

// login verifies username/password and returns the user's auth token.
// POST /api/login (public, no auth required).
func (h *Handler) login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.accounts.Login(c.Request.Context(), body.Username, body.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.engineError(c, err, "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": acct.Token, "user_id": acct.UserID})
}

// authMiddleware validates the Bearer token and sets user_id on the context.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		userID, err := h.accounts.Resolve(c.Request.Context(), token)
		if errors.Is(err, model.ErrNotFound) {
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		if err != nil {
			h.engineError(c, err, "token lookup failed")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
