package services

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"

	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// Identity is the authenticated caller. UID is the canonical key for every
// user-scoped record; Email is informational only.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName"`
	Admin       bool   `json:"admin"`
}

// TokenVerifier is the subset of the Firebase auth client used to resolve
// identities. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// IdentityResolver maps a bearer credential to an Identity
type IdentityResolver struct {
	verifier    TokenVerifier
	adminUIDs   map[string]bool
	adminEmails map[string]bool
	isExpired   func(error) bool
	log         *logger.Logger
}

// NewIdentityResolver creates a resolver. Admins are identified by the
// "admin" custom claim, by UID list membership, or by a verified email in
// the email list.
func NewIdentityResolver(verifier TokenVerifier, adminUIDs, adminEmails []string) *IdentityResolver {
	r := &IdentityResolver{
		verifier:    verifier,
		adminUIDs:   make(map[string]bool, len(adminUIDs)),
		adminEmails: make(map[string]bool, len(adminEmails)),
		isExpired:   auth.IsIDTokenExpired,
		log:         logger.GetLogger("identity"),
	}
	for _, uid := range adminUIDs {
		r.adminUIDs[uid] = true
	}
	for _, email := range adminEmails {
		r.adminEmails[strings.ToLower(email)] = true
	}
	return r
}

// WithExpiryCheck overrides how verification errors are classified as expired
func (r *IdentityResolver) WithExpiryCheck(fn func(error) bool) *IdentityResolver {
	r.isExpired = fn
	return r
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Resolve verifies the Authorization header and returns the caller.
// It never writes anything.
func (r *IdentityResolver) Resolve(ctx context.Context, authorization string) (Identity, error) {
	if strings.TrimSpace(authorization) == "" {
		return Identity{}, fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}
	token, ok := BearerToken(authorization)
	if !ok {
		return Identity{}, fmt.Errorf("%w: authorization header must be Bearer {token}", ErrUnauthenticated)
	}
	if r.verifier == nil {
		return Identity{}, fmt.Errorf("%w: identity provider not configured", ErrUnauthenticated)
	}

	decoded, err := r.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		if r.isExpired != nil && r.isExpired(err) {
			return Identity{}, fmt.Errorf("%w: %v", ErrCredentialExpired, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id := Identity{UID: decoded.UID}
	var emailVerified bool
	if email, ok := decoded.Claims["email"].(string); ok {
		id.Email = email
		emailVerified, _ = decoded.Claims["email_verified"].(bool)
	}
	if id.Email == "" {
		id.Email, emailVerified = r.lookupEmail(ctx, decoded.UID)
	}
	id.DisplayName = models.DisplayNameFromEmail(id.Email, id.UID)

	if admin, ok := decoded.Claims["admin"].(bool); ok && admin {
		id.Admin = true
	}
	// The email list only counts for addresses the provider has verified
	if r.adminUIDs[id.UID] || (emailVerified && id.Email != "" && r.adminEmails[strings.ToLower(id.Email)]) {
		id.Admin = true
	}

	return id, nil
}

func (r *IdentityResolver) lookupEmail(ctx context.Context, uid string) (string, bool) {
	record, err := r.verifier.GetUser(ctx, uid)
	if err != nil || record == nil || record.UserInfo == nil || record.Email == "" {
		r.log.WarnWithFieldsCtx(ctx, "Could not resolve email for user, continuing with uid only", map[string]interface{}{
			"uid":   uid,
			"error": fmt.Sprint(err),
		})
		return "", false
	}
	return record.Email, record.EmailVerified
}
