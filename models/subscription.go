package models

import (
	"time"
)

// Plans
const (
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// Subscription status
const (
	StatusActive    = "active"
	StatusTrial     = "trial"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Billing cycles
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// GatewayRefs holds identifiers issued by the payment gateway
type GatewayRefs struct {
	CustomerID             string `json:"customerId,omitempty" dynamodbav:"customer_id,omitempty"`
	RecurringTransactionID string `json:"recurringTransactionId,omitempty" dynamodbav:"recurring_transaction_id,omitempty"`
}

// Subscription represents the subscriptions table, keyed by Firebase UID
type Subscription struct {
	UserID        string      `json:"userId" dynamodbav:"user_id"` // Primary key
	UserEmail     string      `json:"userEmail,omitempty" dynamodbav:"user_email,omitempty"`
	Plan          string      `json:"plan" dynamodbav:"plan"`
	BillingCycle  string      `json:"billingCycle" dynamodbav:"billing_cycle"`
	Status        string      `json:"status" dynamodbav:"status"`
	StartDate     time.Time   `json:"startDate" dynamodbav:"start_date"`
	EndDate       time.Time   `json:"endDate" dynamodbav:"end_date"`
	AutoRenew     bool        `json:"autoRenew" dynamodbav:"auto_renew"`
	PaymentMethod string      `json:"paymentMethod,omitempty" dynamodbav:"payment_method,omitempty"`
	TransactionID string      `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"`
	Meshulam      GatewayRefs `json:"meshulam" dynamodbav:"meshulam"`
	CreatedAt     time.Time   `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" dynamodbav:"updated_at"`
}

// GrantsPremium reports whether the subscription is in a premium-granting
// status and has not yet reached its end date.
func (s *Subscription) GrantsPremium(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrial {
		return false
	}
	return s.EndDate.After(now)
}

// LapsedByDate reports whether the subscription still claims to be live but
// its end date has passed.
func (s *Subscription) LapsedByDate(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrial {
		return false
	}
	return !s.EndDate.After(now)
}

// CycleDuration returns the subscription period for a billing cycle
func CycleDuration(cycle string) time.Duration {
	if cycle == BillingYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// IsValidPlan checks a plan name
func IsValidPlan(plan string) bool {
	return plan == PlanBasic || plan == PlanPremium
}

// IsValidBillingCycle checks a billing cycle name
func IsValidBillingCycle(cycle string) bool {
	return cycle == BillingMonthly || cycle == BillingYearly
}
