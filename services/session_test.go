package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/models"
)

func TestSessionRoundTrip(t *testing.T) {
	logs := newMemChatLogs()
	store := NewSessionStore(logs, config.SessionPerUser, nil)
	ctx := context.Background()

	session, err := store.LoadOrCreate(ctx, "u1", SessionSeed{UserID: "u1", Level: "beginner"})
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if len(session.Messages) != 0 {
		t.Errorf("Expected empty session, got %d messages", len(session.Messages))
	}

	userMsg := store.NewMessage("u1", models.SenderUser, "marhaba")
	botMsg := store.NewMessage("u1", models.SenderBot, "ahlan")
	if _, err := store.Append(ctx, session, userMsg, botMsg); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reloaded, err := store.LoadOrCreate(ctx, "u1", SessionSeed{UserID: "u1", Level: "advanced"})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Level != "beginner" {
		t.Errorf("Expected existing session to be returned unmodified, got level %s", reloaded.Level)
	}
	n := len(reloaded.Messages)
	if n != 2 {
		t.Fatalf("Expected 2 messages, got %d", n)
	}
	if reloaded.Messages[0] != userMsg || reloaded.Messages[1] != botMsg {
		t.Errorf("Expected appended messages in order, got %+v", reloaded.Messages)
	}
	if !reloaded.Messages[0].IsUser || reloaded.Messages[1].IsUser {
		t.Error("Expected isUser to mirror the sender")
	}
	if !reloaded.UpdatedAt.Equal(botMsg.Timestamp) {
		t.Errorf("Expected updatedAt %v, got %v", botMsg.Timestamp, reloaded.UpdatedAt)
	}
	if !strings.HasPrefix(userMsg.ID, "u1_") {
		t.Errorf("Expected message id prefixed with uid, got %s", userMsg.ID)
	}
}

func TestSessionConcurrentAppendsKeepEveryMessage(t *testing.T) {
	logs := newMemChatLogs()
	store := NewSessionStore(logs, config.SessionPerUser, nil)
	ctx := context.Background()

	session, err := store.LoadOrCreate(ctx, "u1", SessionSeed{UserID: "u1"})
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := store.NewMessage("u1", models.SenderUser, fmt.Sprintf("q%d", i))
			if _, err := store.Append(ctx, session, msg); err != nil {
				t.Errorf("Append %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	final, _ := logs.GetSession(ctx, "u1")
	if len(final.Messages) != 20 {
		t.Fatalf("Expected 20 messages, got %d", len(final.Messages))
	}
	seen := map[string]bool{}
	for _, m := range final.Messages {
		seen[m.Text] = true
	}
	for i := 0; i < 20; i++ {
		if !seen[fmt.Sprintf("q%d", i)] {
			t.Errorf("Expected message q%d to survive concurrent appends", i)
		}
	}
}

func TestSessionKeyPerUser(t *testing.T) {
	store := NewSessionStore(newMemChatLogs(), config.SessionPerUser, nil)
	key, err := store.SessionKey(context.Background(), "u1", "someone-elses")
	if err != nil {
		t.Fatalf("SessionKey failed: %v", err)
	}
	if key != "u1" {
		t.Errorf("Expected uid as session key, got %s", key)
	}
}

func TestSessionKeyPerConnection(t *testing.T) {
	logs := newMemChatLogs()
	logs.sessions["session_u1_abc"] = models.ChatSession{ID: "session_u1_abc", UserID: "u1"}
	logs.sessions["session_u2_xyz"] = models.ChatSession{ID: "session_u2_xyz", UserID: "u2"}
	store := NewSessionStore(logs, config.SessionPerConnection, nil)
	ctx := context.Background()

	key, err := store.SessionKey(ctx, "u1", "session_u1_abc")
	if err != nil || key != "session_u1_abc" {
		t.Errorf("Expected own session to be reused, got %s, %v", key, err)
	}

	if _, err := store.SessionKey(ctx, "u1", "session_u2_xyz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's session, got %v", err)
	}

	key, err = store.SessionKey(ctx, "u1", "")
	if err != nil {
		t.Fatalf("SessionKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "session_u1_") {
		t.Errorf("Expected minted key session_u1_*, got %s", key)
	}
}

func TestChatLogListFiltersAndPages(t *testing.T) {
	logs := newMemChatLogs()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("s%02d", i)
		logs.sessions[id] = models.ChatSession{
			ID:        id,
			UserID:    fmt.Sprintf("user%d", i%3),
			UserEmail: fmt.Sprintf("User%d@Example.com", i%3),
			UserName:  fmt.Sprintf("user%d", i%3),
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	store := NewSessionStore(logs, config.SessionPerUser, nil)
	ctx := context.Background()

	q, err := ParseChatLogQuery("", "", "", "", "", "", "")
	if err != nil {
		t.Fatalf("ParseChatLogQuery failed: %v", err)
	}
	page, err := store.List(ctx, q)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 2 || len(page.Chats) != 20 {
		t.Errorf("Expected 25 total, 2 pages, 20 chats, got %d, %d, %d", page.Total, page.TotalPages, len(page.Chats))
	}
	if page.Chats[0].ID != "s24" {
		t.Errorf("Expected newest first, got %s", page.Chats[0].ID)
	}

	q, _ = ParseChatLogQuery("2", "20", "", "", "", "", "")
	page, _ = store.List(ctx, q)
	if len(page.Chats) != 5 {
		t.Errorf("Expected 5 chats on page 2, got %d", len(page.Chats))
	}

	q, _ = ParseChatLogQuery("", "", "", "", "user1@example", "", "")
	page, _ = store.List(ctx, q)
	if page.Total != 8 {
		t.Errorf("Expected 8 sessions for user1 by email, got %d", page.Total)
	}

	q, err = ParseChatLogQuery("", "", "", "", "", "2025-03-01", "2025-03-03")
	if err != nil {
		t.Fatalf("ParseChatLogQuery failed: %v", err)
	}
	page, _ = store.List(ctx, q)
	if page.Total != 3 {
		t.Errorf("Expected inclusive date range to match 3 sessions, got %d", page.Total)
	}

	q, _ = ParseChatLogQuery("", "1000", "", "", "", "", "")
	if q.PageSize != 100 {
		t.Errorf("Expected pageSize capped at 100, got %d", q.PageSize)
	}
}

func TestChatLogListByUserUsesOwnerLookup(t *testing.T) {
	logs := newMemChatLogs()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logs.sessions["a"] = models.ChatSession{ID: "a", UserID: "user1", CreatedAt: base}
	logs.sessions["b"] = models.ChatSession{ID: "b", UserID: "user1", CreatedAt: base.Add(time.Hour)}
	logs.sessions["c"] = models.ChatSession{ID: "c", UserID: "user10", CreatedAt: base}
	store := NewSessionStore(logs, config.SessionPerUser, nil)

	q, err := ParseChatLogQuery("", "", "", "user1", "", "", "")
	if err != nil {
		t.Fatalf("ParseChatLogQuery failed: %v", err)
	}
	page, err := store.List(context.Background(), q)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if logs.userQueries != 1 {
		t.Errorf("Expected one owner lookup, got %d", logs.userQueries)
	}
	if page.Total != 2 || page.Chats[0].ID != "b" {
		t.Errorf("Expected user1's two sessions newest first, got %+v", page.Chats)
	}
}

func TestParseChatLogQueryRejectsBadDates(t *testing.T) {
	_, err := ParseChatLogQuery("", "", "", "", "", "yesterday", "2025-03-03")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestDeleteMissingSession(t *testing.T) {
	store := NewSessionStore(newMemChatLogs(), config.SessionPerUser, nil)
	if err := store.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
