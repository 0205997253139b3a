package models

import "time"

// User represents the users table. TotalMessages maps a month key
// ("2025-3") to the number of accepted messages in that month.
type User struct {
	UserID        string         `json:"userId" dynamodbav:"user_id"` // Primary key
	Email         string         `json:"email,omitempty" dynamodbav:"email,omitempty"`
	DisplayName   string         `json:"displayName,omitempty" dynamodbav:"display_name,omitempty"`
	IsPremium     bool           `json:"isPremium" dynamodbav:"is_premium"`
	TotalMessages map[string]int `json:"totalMessages" dynamodbav:"total_messages"`
	CreatedAt     time.Time      `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" dynamodbav:"updated_at"`
}
