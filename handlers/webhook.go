package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/meshulam"
)

const maxWebhookBody = 1 << 20

// MeshulamWebhook handles POST /api/webhook/meshulam. The raw body must
// carry a valid X-Meshulam-Signature before anything is parsed.
func (h *Handler) MeshulamWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read request body"})
		return
	}

	if !meshulam.VerifySignature(h.webhookSecret, body, c.GetHeader(meshulam.WebhookSigHeader)) {
		h.metrics.Webhook("bad_signature")
		h.log.WarnWithFieldsCtx(c.Request.Context(), "Webhook signature rejected", map[string]interface{}{
			"client_ip": c.ClientIP(),
		})
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid webhook signature"})
		return
	}

	payload, err := meshulam.ParseWebhook(body)
	if err != nil {
		h.metrics.Webhook("rejected")
		msg := "Invalid webhook payload"
		if errors.Is(err, meshulam.ErrEmptyWebhook) {
			msg = "No data received"
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
		return
	}

	result, err := h.billing.HandleWebhook(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"userId":    result.UserID,
		"duplicate": result.Duplicate,
	})
}
