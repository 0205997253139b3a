package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/models"
)

var errStoreDown = errors.New("store unavailable")

// memCounter is an in-memory UsageCounter with the same ceiling semantics
// as the DynamoDB and Redis counters
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
	writes int
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int{}}
}

func (c *memCounter) key(userID, month string) string {
	return userID + "|" + month
}

func (c *memCounter) set(userID, month string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[c.key(userID, month)] = n
}

func (c *memCounter) get(userID, month string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[c.key(userID, month)]
}

func (c *memCounter) MonthlyCount(ctx context.Context, userID, month string) (int, error) {
	return c.get(userID, month), nil
}

func (c *memCounter) IncrementWithCeiling(ctx context.Context, userID, month string, ceiling int) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(userID, month)
	if c.counts[k] >= ceiling {
		return c.counts[k], false, nil
	}
	c.counts[k]++
	c.writes++
	return c.counts[k], true, nil
}

// memUsers is an in-memory UserStore
type memUsers struct {
	mu     sync.Mutex
	users  map[string]models.User
	writes int
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]models.User{}}
}

func (u *memUsers) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (u *memUsers) EnsureUser(ctx context.Context, user models.User) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.users[user.UserID]; ok {
		return &existing, nil
	}
	u.users[user.UserID] = user
	u.writes++
	return &user, nil
}

func (u *memUsers) SetPremium(ctx context.Context, userID, email string, premium bool, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[userID]
	user.UserID = userID
	if email != "" {
		user.Email = email
	}
	user.IsPremium = premium
	user.UpdatedAt = at
	u.users[userID] = user
	u.writes++
	return nil
}

// memSubs is an in-memory SubscriptionStore
type memSubs struct {
	mu     sync.Mutex
	subs   map[string]models.Subscription
	writes int
	err    error
	// beforeExpire runs ahead of the guarded write, standing in for a
	// concurrent writer
	beforeExpire func()
}

func newMemSubs() *memSubs {
	return &memSubs{subs: map[string]models.Subscription{}}
}

func (s *memSubs) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sub, ok := s.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *memSubs) PutSubscription(ctx context.Context, sub models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = sub
	s.writes++
	return nil
}

func (s *memSubs) ExpireSubscription(ctx context.Context, userID, fromStatus string, readEnd, at time.Time) (bool, error) {
	if s.beforeExpire != nil {
		s.beforeExpire()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok || sub.Status != fromStatus || !sub.EndDate.Equal(readEnd) {
		return false, nil
	}
	sub.Status = models.StatusExpired
	sub.UpdatedAt = at
	s.subs[userID] = sub
	s.writes++
	return true, nil
}

func (s *memSubs) CancelSubscription(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[userID]
	sub.Status = models.StatusCancelled
	sub.AutoRenew = false
	sub.UpdatedAt = at
	s.subs[userID] = sub
	s.writes++
	return nil
}

// memChatLogs is an in-memory ChatLogStore
type memChatLogs struct {
	mu          sync.Mutex
	sessions    map[string]models.ChatSession
	appendErr   error
	writes      int
	userQueries int
}

func newMemChatLogs() *memChatLogs {
	return &memChatLogs{sessions: map[string]models.ChatSession{}}
}

func copySession(s models.ChatSession) *models.ChatSession {
	out := s
	out.Messages = append([]models.Message(nil), s.Messages...)
	return &out
}

func (m *memChatLogs) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *memChatLogs) CreateSession(ctx context.Context, session models.ChatSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return false, nil
	}
	m.sessions[session.ID] = *copySession(session)
	m.writes++
	return true, nil
}

func (m *memChatLogs) AppendMessages(ctx context.Context, sessionID string, msgs []models.Message, updatedAt time.Time) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = updatedAt
	m.sessions[sessionID] = s
	m.writes++
	return copySession(s), nil
}

func (m *memChatLogs) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *copySession(s))
	}
	return out, nil
}

func (m *memChatLogs) ListSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userQueries++
	var out []models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

func (m *memChatLogs) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(m.sessions, sessionID)
	return true, nil
}

func (m *memChatLogs) DeleteAllSessions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = map[string]models.ChatSession{}
	return n, nil
}

// memTransactions is an in-memory TransactionStore
type memTransactions struct {
	mu     sync.Mutex
	txs    map[string]models.Transaction
	writes int
}

func newMemTransactions() *memTransactions {
	return &memTransactions{txs: map[string]models.Transaction{}}
}

func (m *memTransactions) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *memTransactions) PutTransaction(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.TransactionID] = tx
	m.writes++
	return nil
}

func (m *memTransactions) UpdateTransactionStatus(ctx context.Context, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	tx.UpdatedAt = at
	m.txs[id] = tx
	m.writes++
	return nil
}

// fakeGateway records calls and returns canned responses
type fakeGateway struct {
	mu         sync.Mutex
	createResp *meshulam.Response
	infoResp   *meshulam.Response
	stopResp   *meshulam.Response
	err        error
	stopErr    error
	created    []meshulam.PaymentRequest
	stopped    []string
}

func (g *fakeGateway) CreatePaymentProcess(ctx context.Context, req meshulam.PaymentRequest) (*meshulam.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.createResp, nil
}

func (g *fakeGateway) GetTransactionInfo(ctx context.Context, id string) (*meshulam.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.infoResp, nil
}

func (g *fakeGateway) StopRecurringPayment(ctx context.Context, id string) (*meshulam.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = append(g.stopped, id)
	if g.stopErr != nil {
		return nil, g.stopErr
	}
	if g.stopResp != nil {
		return g.stopResp, nil
	}
	return &meshulam.Response{Status: 1}, nil
}

// fakeDirectory maps emails to UIDs, creating entries on demand
type fakeDirectory struct {
	byEmail map[string]string
	created int
}

func (d *fakeDirectory) LookupOrCreateByEmail(ctx context.Context, email, displayName string) (string, bool, error) {
	if uid, ok := d.byEmail[email]; ok {
		return uid, false, nil
	}
	if d.byEmail == nil {
		d.byEmail = map[string]string{}
	}
	uid := "uid-" + displayName
	d.byEmail[email] = uid
	d.created++
	return uid, true, nil
}

// fakeModel returns a fixed answer or error and counts calls
type fakeModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	prompts []string
	onCall  func()
}

func (m *fakeModel) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, systemPrompt)
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

// fakeMaterials returns canned materials
type fakeMaterials struct {
	items []Material
	err   error
}

func (f *fakeMaterials) Materials(ctx context.Context, level, week string) ([]Material, error) {
	return f.items, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
