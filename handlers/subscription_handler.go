package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/middleware"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/services"
)

// CreatePaymentRequest is the body of POST /api/subscription/create-payment.
// The amount is always priced server-side; a client-sent sum is ignored.
type CreatePaymentRequest struct {
	UserID       string `json:"userId"`
	Plan         string `json:"plan"`
	BillingCycle string `json:"billingCycle"`
	PaymentType  string `json:"paymentType"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
}

// VerifyPaymentRequest is the body of POST /api/subscription/verify-payment
type VerifyPaymentRequest struct {
	UserID        string `json:"userId"`
	TransactionID string `json:"transactionId"`
}

// CancelRequest is the body of POST /api/subscription/cancel
type CancelRequest struct {
	UserID string `json:"userId"`
}

// ChangePlanRequest is the body of POST /api/subscription/change-plan
type ChangePlanRequest struct {
	UserID          string `json:"userId"`
	NewPlan         string `json:"newPlan"`
	NewBillingCycle string `json:"newBillingCycle"`
}

// callerMatches enforces that a body userId, when present, names the caller
func (h *Handler) callerMatches(c *gin.Context, userID string) (services.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		h.respondError(c, services.ErrUnauthenticated)
		return id, false
	}
	if userID = strings.TrimSpace(userID); userID != "" && userID != id.UID {
		h.log.WarnWithFieldsCtx(c.Request.Context(), "Subscription request for another user rejected", map[string]interface{}{
			"user_id":   id.UID,
			"requested": userID,
			"path":      c.Request.URL.Path,
		})
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "User ID does not match the authenticated user"})
		return id, false
	}
	return id, true
}

// GetSubscription handles GET /api/subscription
func (h *Handler) GetSubscription(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		h.respondError(c, services.ErrUnauthenticated)
		return
	}

	sub, err := h.subscriptions.Current(c.Request.Context(), id.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"isPremium":    sub.GrantsPremium(h.now()),
	})
}

// CreatePayment handles POST /api/subscription/create-payment
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	id, ok := h.callerMatches(c, req.UserID)
	if !ok {
		return
	}

	cycle := req.BillingCycle
	if cycle == "" && req.PaymentType == meshulam.PaymentRegular {
		cycle = models.BillingYearly
	}

	result, err := h.billing.CreatePayment(c.Request.Context(), id, services.CreatePaymentInput{
		Plan:         req.Plan,
		BillingCycle: cycle,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gatewayOK(result))
}

// VerifyPayment handles POST /api/subscription/verify-payment
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	id, ok := h.callerMatches(c, req.UserID)
	if !ok {
		return
	}

	result, err := h.billing.VerifyPayment(c.Request.Context(), id, strings.TrimSpace(req.TransactionID))
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := 0
	if result.Verified {
		status = 1
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "data": result})
}

// CancelSubscription handles POST /api/subscription/cancel
func (h *Handler) CancelSubscription(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	id, ok := h.callerMatches(c, req.UserID)
	if !ok {
		return
	}

	sub, err := h.billing.Cancel(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gatewayOK(gin.H{
		"message":      "Subscription cancelled",
		"subscription": sub,
	}))
}

// ChangePlan handles POST /api/subscription/change-plan
func (h *Handler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	id, ok := h.callerMatches(c, req.UserID)
	if !ok {
		return
	}

	sub, err := h.billing.ChangePlan(c.Request.Context(), id, req.NewPlan, req.NewBillingCycle)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gatewayOK(gin.H{
		"message":      "Subscription plan changed",
		"newEndDate":   sub.EndDate,
		"subscription": sub,
	}))
}
