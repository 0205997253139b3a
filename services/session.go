package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// ChatLogStore persists chat sessions. GetSession returns nil, nil when the
// session does not exist.
type ChatLogStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	// CreateSession writes the session only if no session with its ID exists
	CreateSession(ctx context.Context, session models.ChatSession) (bool, error)
	// AppendMessages adds msgs to the end of the stored list without
	// rewriting existing entries and returns the updated session
	AppendMessages(ctx context.Context, sessionID string, msgs []models.Message, updatedAt time.Time) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	// ListSessionsByUser returns the sessions whose owner UID equals userID
	ListSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	DeleteAllSessions(ctx context.Context) (int, error)
}

// SessionSeed holds the fields a new session is created with
type SessionSeed struct {
	UserID    string
	UserEmail string
	UserName  string
	Level     string
	Language  string
	Week      string
	Gender    string
}

// SessionStore manages conversation documents
type SessionStore struct {
	store  ChatLogStore
	policy string
	now    func() time.Time
	log    *logger.Logger
}

// NewSessionStore creates a SessionStore for the given keying policy
func NewSessionStore(store ChatLogStore, policy string, clock func() time.Time) *SessionStore {
	if clock == nil {
		clock = time.Now
	}
	if policy == "" {
		policy = config.SessionPerUser
	}
	return &SessionStore{
		store:  store,
		policy: policy,
		now:    clock,
		log:    logger.GetLogger("sessions"),
	}
}

// Policy returns the session keying policy
func (s *SessionStore) Policy() string {
	return s.policy
}

// SessionKey picks the session ID for a request. Under the per-user policy
// it is always the UID. Under per-connection a requested ID is reused only
// when it belongs to the caller; otherwise a fresh ID is minted.
func (s *SessionStore) SessionKey(ctx context.Context, userID, requested string) (string, error) {
	if s.policy == config.SessionPerUser {
		return userID, nil
	}

	if requested != "" {
		existing, err := s.store.GetSession(ctx, requested)
		if err != nil {
			return "", fmt.Errorf("failed to get session: %w", err)
		}
		if existing != nil {
			if existing.UserID != userID {
				return "", ErrNotFound
			}
			return requested, nil
		}
	}

	return fmt.Sprintf("session_%s_%s", userID, uuid.NewString()), nil
}

// LoadOrCreate returns the session stored under key, creating it from seed
// when absent. An existing session is returned unmodified.
func (s *SessionStore) LoadOrCreate(ctx context.Context, key string, seed SessionSeed) (*models.ChatSession, error) {
	existing, err := s.store.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().UTC()
	session := models.ChatSession{
		ID:        key,
		UserID:    seed.UserID,
		UserEmail: seed.UserEmail,
		UserName:  seed.UserName,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Level:     seed.Level,
		Language:  seed.Language,
		Week:      seed.Week,
		Gender:    seed.Gender,
	}

	created, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if created {
		s.log.InfoWithFieldsCtx(ctx, "Created chat session", map[string]interface{}{
			"session_id": key,
			"user_id":    seed.UserID,
		})
		return &session, nil
	}

	// lost a creation race; the winner's document is authoritative
	existing, err = s.store.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("session %s vanished after concurrent create", key)
	}
	return existing, nil
}

// Append adds msgs to the session in order. The session's UpdatedAt becomes
// the timestamp of the last appended message.
func (s *SessionStore) Append(ctx context.Context, session *models.ChatSession, msgs ...models.Message) (*models.ChatSession, error) {
	if len(msgs) == 0 {
		return session, nil
	}
	updatedAt := msgs[len(msgs)-1].Timestamp

	updated, err := s.store.AppendMessages(ctx, session.ID, msgs, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append messages: %w", err)
	}
	return updated, nil
}

// NewMessage builds a message owned by userID, stamped with the store clock
func (s *SessionStore) NewMessage(userID, sender, text string) models.Message {
	return models.Message{
		ID:        fmt.Sprintf("%s_%s", userID, uuid.NewString()),
		Sender:    sender,
		Text:      text,
		Timestamp: s.now().UTC(),
		IsUser:    sender == models.SenderUser,
	}
}
