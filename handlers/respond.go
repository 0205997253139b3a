package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/services"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// QuotaResponse is returned when a free user has used up the month
type QuotaResponse struct {
	Error               string             `json:"error"`
	Answer              string             `json:"answer"`
	LimitReached        bool               `json:"limitReached"`
	IsSubscriptionLimit bool               `json:"isSubscriptionLimit"`
	UpgradeLink         string             `json:"upgradeLink"`
	SessionID           string             `json:"sessionId,omitempty"`
	Usage               services.Allowance `json:"usage"`
}

const internalErrorMessage = "An internal server error occurred"

// respondError maps service errors to status codes. Internal detail is
// logged, never returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var quota *services.QuotaExceededError

	switch {
	case errors.As(err, &quota):
		c.JSON(http.StatusForbidden, QuotaResponse{
			Error:               quota.LimitMessage(),
			Answer:              quota.LimitMessage(),
			LimitReached:        true,
			IsSubscriptionLimit: true,
			UpgradeLink:         "/subscription",
			SessionID:           quota.SessionID,
			Usage: services.Allowance{
				Used:      quota.Used,
				Limit:     quota.Limit,
				Remaining: 0,
				Allowed:   false,
			},
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validation.Error()})
	case errors.Is(err, services.ErrCredentialExpired):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Token expired"})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or missing authentication token"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	default:
		h.log.ErrorWithFieldsCtx(c.Request.Context(), "Request failed", map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}, err)
		h.metrics.Error("handler")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
	}
}

// gatewayOK wraps a payload in the gateway-style envelope the client expects
func gatewayOK(data interface{}) gin.H {
	return gin.H{"status": 1, "data": data}
}
