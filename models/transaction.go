package models

import "time"

// Transaction status
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
	TransactionCancelled = "cancelled"
)

// Transaction represents the transactions table, keyed by the gateway's
// transaction identifier
type Transaction struct {
	TransactionID string    `json:"transactionId" dynamodbav:"transaction_id"` // Primary key
	UserID        string    `json:"userId" dynamodbav:"user_id"`              // GSI key
	UserEmail     string    `json:"userEmail,omitempty" dynamodbav:"user_email,omitempty"`
	Amount        float64   `json:"amount" dynamodbav:"amount"`
	Plan          string    `json:"plan" dynamodbav:"plan"`
	BillingCycle  string    `json:"billingCycle" dynamodbav:"billing_cycle"`
	Description   string    `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Status        string    `json:"status" dynamodbav:"status"`
	CreatedAt     time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}
