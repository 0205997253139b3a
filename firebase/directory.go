package firebase

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"

	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// UserAdmin is the part of the Firebase auth client the directory needs.
// *auth.Client satisfies it.
type UserAdmin interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
}

// Directory maps payer emails to Firebase UIDs
type Directory struct {
	users      UserAdmin
	isNotFound func(error) bool
	log        *logger.Logger
}

// NewDirectory creates a directory over the Firebase auth client
func NewDirectory(users UserAdmin) *Directory {
	return &Directory{
		users:      users,
		isNotFound: auth.IsUserNotFound,
		log:        logger.GetLogger("directory"),
	}
}

// LookupOrCreateByEmail returns the UID for email, creating a Firebase user
// when none exists
func (d *Directory) LookupOrCreateByEmail(ctx context.Context, email, displayName string) (string, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false, fmt.Errorf("email is required")
	}

	record, err := d.users.GetUserByEmail(ctx, email)
	if err == nil {
		return record.UID, false, nil
	}
	if !d.isNotFound(err) {
		return "", false, fmt.Errorf("failed to look up user by email: %w", err)
	}

	params := (&auth.UserToCreate{}).Email(email)
	if displayName = strings.TrimSpace(displayName); displayName != "" {
		params = params.DisplayName(displayName)
	}

	record, err = d.users.CreateUser(ctx, params)
	if err != nil {
		return "", false, fmt.Errorf("failed to create user: %w", err)
	}

	d.log.InfoWithFieldsCtx(ctx, "Created Firebase user for payer", map[string]interface{}{
		"user_id": record.UID,
	})
	return record.UID, true, nil
}
