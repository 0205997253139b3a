package services

import (
	"context"
	"fmt"
	"time"
)

// UsageCounter stores per-user monthly message counts. IncrementWithCeiling
// must be atomic: it increments only while the stored count is below the
// ceiling and reports whether it did.
type UsageCounter interface {
	MonthlyCount(ctx context.Context, userID, month string) (int, error)
	IncrementWithCeiling(ctx context.Context, userID, month string, ceiling int) (count int, incremented bool, err error)
}

// Allowance describes where a user stands against the monthly quota
type Allowance struct {
	Month            string `json:"month"`
	Used             int    `json:"used"`
	Limit            int    `json:"limit"`
	Remaining        int    `json:"remaining"`
	Allowed          bool   `json:"allowed"`
	ApproachingLimit bool   `json:"approachingLimit"`
	Unlimited        bool   `json:"unlimited,omitempty"`
}

// UsageLedger enforces the monthly message quota for non-premium users
type UsageLedger struct {
	counter UsageCounter
	quota   int
	now     func() time.Time
}

// NewUsageLedger creates a ledger. clock may be nil.
func NewUsageLedger(counter UsageCounter, quota int, clock func() time.Time) *UsageLedger {
	if clock == nil {
		clock = time.Now
	}
	return &UsageLedger{counter: counter, quota: quota, now: clock}
}

// Quota returns the monthly limit
func (l *UsageLedger) Quota() int {
	return l.quota
}

// MonthKey formats the ledger bucket for t, e.g. "2025-3"
func MonthKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}

func (l *UsageLedger) allowance(month string, used int) Allowance {
	remaining := l.quota - used
	if remaining < 0 {
		remaining = 0
	}
	return Allowance{
		Month:            month,
		Used:             used,
		Limit:            l.quota,
		Remaining:        remaining,
		Allowed:          used < l.quota,
		ApproachingLimit: used == l.quota-1,
	}
}

// CanPost reports whether the user may send another message this month
func (l *UsageLedger) CanPost(ctx context.Context, userID string) (Allowance, error) {
	month := MonthKey(l.now())
	used, err := l.counter.MonthlyCount(ctx, userID, month)
	if err != nil {
		return Allowance{}, fmt.Errorf("failed to read usage: %w", err)
	}
	return l.allowance(month, used), nil
}

// RecordPost charges one message against the current month. It returns
// ErrQuotaExceeded, without writing, when the quota is already used up.
func (l *UsageLedger) RecordPost(ctx context.Context, userID string) (Allowance, error) {
	month := MonthKey(l.now())
	count, ok, err := l.counter.IncrementWithCeiling(ctx, userID, month, l.quota)
	if err != nil {
		return Allowance{}, fmt.Errorf("failed to record usage: %w", err)
	}
	a := l.allowance(month, count)
	if !ok {
		return a, ErrQuotaExceeded
	}
	return a, nil
}
