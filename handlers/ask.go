package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/middleware"
	"github.com/LaithMimi/blendarchatbot2/services"
)

// Ask handles POST /ask and /api/ask
func (h *Handler) Ask(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		h.respondError(c, services.ErrUnauthenticated)
		return
	}

	var req services.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.tutor.Ask(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Usage handles GET /api/usage
func (h *Handler) Usage(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		h.respondError(c, services.ErrUnauthenticated)
		return
	}
	ctx := c.Request.Context()

	sub, err := h.subscriptions.Current(ctx, id.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if sub.GrantsPremium(h.now()) {
		c.JSON(http.StatusOK, gin.H{
			"isPremium": true,
			"usage":     services.Allowance{Allowed: true, Unlimited: true},
		})
		return
	}

	allowance, err := h.usage.CanPost(ctx, id.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"isPremium": false,
		"usage":     allowance,
	})
}
