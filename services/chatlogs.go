package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LaithMimi/blendarchatbot2/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ChatLogQuery filters the admin chat-log listing
type ChatLogQuery struct {
	Page       int
	PageSize   int
	SearchTerm string
	UserID     string
	UserEmail  string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// ChatLogPage is one page of sessions, newest first
type ChatLogPage struct {
	Chats      []models.ChatSession `json:"chats"`
	TotalPages int                  `json:"totalPages"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
}

// ParseChatLogQuery builds a query from raw request parameters. Dates are
// accepted as RFC 3339 or YYYY-MM-DD; a date-only upper bound covers the
// whole day. Both dates must be given for the range to apply.
func ParseChatLogQuery(page, pageSize, searchTerm, userID, userEmail, dateFrom, dateTo string) (ChatLogQuery, error) {
	q := ChatLogQuery{
		Page:       1,
		PageSize:   defaultPageSize,
		SearchTerm: strings.TrimSpace(searchTerm),
		UserID:     strings.TrimSpace(userID),
		UserEmail:  strings.TrimSpace(userEmail),
	}

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return q, NewValidationError("page", "page must be a positive integer")
		}
		q.Page = n
	}
	if pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n < 1 {
			return q, NewValidationError("pageSize", "pageSize must be a positive integer")
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		q.PageSize = n
	}

	if dateFrom != "" && dateTo != "" {
		from, _, err := parseQueryDate(dateFrom)
		if err != nil {
			return q, NewValidationError("dateFrom", "dateFrom must be RFC 3339 or YYYY-MM-DD")
		}
		to, dateOnly, err := parseQueryDate(dateTo)
		if err != nil {
			return q, NewValidationError("dateTo", "dateTo must be RFC 3339 or YYYY-MM-DD")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		q.DateFrom = &from
		q.DateTo = &to
	}

	return q, nil
}

func parseQueryDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (q ChatLogQuery) matches(s *models.ChatSession) bool {
	if q.SearchTerm != "" &&
		!containsFold(s.UserName, q.SearchTerm) &&
		!containsFold(s.UserID, q.SearchTerm) &&
		!containsFold(s.UserEmail, q.SearchTerm) &&
		!containsFold(s.ID, q.SearchTerm) {
		return false
	}
	if q.UserID != "" && s.UserID != q.UserID {
		return false
	}
	if q.UserEmail != "" && !containsFold(s.UserEmail, q.UserEmail) {
		return false
	}
	if q.DateFrom != nil && q.DateTo != nil {
		if s.CreatedAt.Before(*q.DateFrom) || s.CreatedAt.After(*q.DateTo) {
			return false
		}
	}
	return true
}

// List returns the sessions matching q, sorted by creation time descending
func (s *SessionStore) List(ctx context.Context, q ChatLogQuery) (*ChatLogPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	var all []models.ChatSession
	var err error
	if q.UserID != "" {
		all, err = s.store.ListSessionsByUser(ctx, q.UserID)
	} else {
		all, err = s.store.ListSessions(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	filtered := make([]models.ChatSession, 0, len(all))
	for i := range all {
		if q.matches(&all[i]) {
			filtered = append(filtered, all[i])
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	totalPages := (total + q.PageSize - 1) / q.PageSize

	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return &ChatLogPage{
		Chats:      filtered[start:end],
		TotalPages: totalPages,
		Total:      total,
		Page:       q.Page,
	}, nil
}

// Get returns one session or ErrNotFound
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// Delete removes one session or returns ErrNotFound
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	deleted, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.log.InfoWithFieldsCtx(ctx, "Deleted chat session", map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// DeleteAll removes every session and returns how many were deleted
func (s *SessionStore) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.store.DeleteAllSessions(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to delete sessions: %w", err)
	}
	s.log.InfoWithFieldsCtx(ctx, "Deleted all chat sessions", map[string]interface{}{
		"deleted": n,
	})
	return n, nil
}
