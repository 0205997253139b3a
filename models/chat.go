package models

import (
	"strings"
	"time"
)

// Message senders
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is a single turn stored inside a chat session
type Message struct {
	ID        string    `json:"id" dynamodbav:"id"`
	Sender    string    `json:"sender" dynamodbav:"sender"`
	Text      string    `json:"text" dynamodbav:"text"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
	IsUser    bool      `json:"isUser" dynamodbav:"is_user"`
}

// ChatSession represents the chat_logs table
type ChatSession struct {
	ID        string    `json:"_id" dynamodbav:"id"` // Primary key
	UserID    string    `json:"userId" dynamodbav:"user_id"`
	UserEmail string    `json:"userEmail" dynamodbav:"user_email"`
	UserName  string    `json:"userName" dynamodbav:"user_name"`
	Messages  []Message `json:"messages" dynamodbav:"messages"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
	Level     string    `json:"level" dynamodbav:"level"`
	Language  string    `json:"language" dynamodbav:"language"`
	Week      string    `json:"week" dynamodbav:"week"`
	Gender    string    `json:"gender" dynamodbav:"gender"`
}

// LastMessages returns up to n of the most recent messages in order.
func (s *ChatSession) LastMessages(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// DisplayNameFromEmail returns the local part of an email address, or the
// fallback when the email is empty.
func DisplayNameFromEmail(email, fallback string) string {
	if email == "" {
		return fallback
	}
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
