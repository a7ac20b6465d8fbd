package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/nutrition-tracker-api/internal/profile"
)

// getProfile returns the authenticated user's profile. Targets and BMI are
// null until onboarding completes.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.svc.Profiles().Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.engineError(c, err, "failed to fetch profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// patchProfile updates biometrics, tier or goal and recomputes targets.
// PATCH /api/profile. All fields are optional; only provided fields change.
func (h *Handler) patchProfile(c *gin.Context) {
	var patch profile.BiometricsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.svc.Profiles().UpdateBiometrics(c.Request.Context(), c.GetString("user_id"), patch)
	if err != nil {
		h.engineError(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// postOnboarding submits the questionnaire: derives targets and BMI, starts
// the challenge and opens today's progress snapshot.
// POST /api/onboarding.
func (h *Handler) postOnboarding(c *gin.Context) {
	var body onboardingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	today, ok := h.bodyDate(c, body.Date)
	if !ok {
		return
	}

	p, err := h.svc.Onboard(c.Request.Context(), c.GetString("user_id"), today, body.OnboardingInput)
	if err != nil {
		h.engineError(c, err, "failed to complete onboarding")
		return
	}
	c.JSON(http.StatusOK, p)
}
