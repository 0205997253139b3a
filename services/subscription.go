package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// SubscriptionStore persists subscriptions keyed by UID. GetSubscription
// returns nil, nil when the user has none.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	PutSubscription(ctx context.Context, sub models.Subscription) error
	// ExpireSubscription sets status=expired only if the stored status and
	// end date still equal the ones read, and reports whether it wrote
	ExpireSubscription(ctx context.Context, userID, fromStatus string, readEnd, at time.Time) (bool, error)
	CancelSubscription(ctx context.Context, userID string, at time.Time) error
}

// UserStore persists user records keyed by UID. GetUser returns nil, nil
// when the user has no record.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// EnsureUser creates the record if absent and returns the stored one
	EnsureUser(ctx context.Context, user models.User) (*models.User, error)
	// SetPremium upserts the premium flag
	SetPremium(ctx context.Context, userID, email string, premium bool, at time.Time) error
}

// SubscriptionState answers whether a user currently has premium access,
// correcting stale records as it reads them
type SubscriptionState struct {
	subs  SubscriptionStore
	users UserStore
	now   func() time.Time
	log   *logger.Logger
}

// NewSubscriptionState creates a SubscriptionState. clock may be nil.
func NewSubscriptionState(subs SubscriptionStore, users UserStore, clock func() time.Time) *SubscriptionState {
	if clock == nil {
		clock = time.Now
	}
	return &SubscriptionState{
		subs:  subs,
		users: users,
		now:   clock,
		log:   logger.GetLogger("subscription"),
	}
}

// IsPremium reports whether the user has a live premium subscription
func (s *SubscriptionState) IsPremium(ctx context.Context, userID string) (bool, error) {
	sub, err := s.Current(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.GrantsPremium(s.now()), nil
}

// Current returns the user's subscription (nil if none) after read-repair.
// A subscription whose end date passed while still active or trial is
// marked expired, and a stale premium flag on the user is cleared, including
// for users with no subscription at all. The flag is only cleared once the
// subscription is known not to grant premium; a renewal that lands between
// the read and the expire leaves both records alone.
func (s *SubscriptionState) Current(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.subs.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	now := s.now()
	if sub.GrantsPremium(now) {
		return sub, nil
	}

	if sub != nil && sub.LapsedByDate(now) {
		changed, err := s.subs.ExpireSubscription(ctx, userID, sub.Status, sub.EndDate, now)
		if err != nil {
			return nil, fmt.Errorf("failed to expire subscription: %w", err)
		}
		if changed {
			s.log.InfoWithFieldsCtx(ctx, "Subscription expired on read", map[string]interface{}{
				"user_id":  userID,
				"end_date": sub.EndDate.Format(time.RFC3339),
			})
			sub.Status = models.StatusExpired
			sub.UpdatedAt = now
		} else {
			// Someone else wrote the record since we read it
			sub, err = s.subs.GetSubscription(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to get subscription: %w", err)
			}
			if sub.GrantsPremium(now) {
				return sub, nil
			}
		}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user != nil && user.IsPremium {
		if err := s.users.SetPremium(ctx, userID, user.Email, false, now); err != nil {
			return nil, fmt.Errorf("failed to clear premium flag: %w", err)
		}
		status := "none"
		if sub != nil {
			status = sub.Status
		}
		s.log.InfoWithFieldsCtx(ctx, "Cleared stale premium flag", map[string]interface{}{
			"user_id": userID,
			"status":  status,
		})
	}

	return sub, nil
}
