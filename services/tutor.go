package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// FallbackAnswer is returned to the student when the model call fails
const FallbackAnswer = "We encountered an issue calling OpenAI. Please try again later."

// Ask defaults
const (
	DefaultWeek     = "01"
	DefaultLevel    = "beginner"
	DefaultGender   = "male"
	DefaultLanguage = "Hebrew"
)

// MaterialSource returns the lesson materials for a level and week
type MaterialSource interface {
	Materials(ctx context.Context, level, week string) ([]Material, error)
}

// TutorDeps are the collaborators of Tutor
type TutorDeps struct {
	Subscriptions *SubscriptionState
	Ledger        *UsageLedger
	Sessions      *SessionStore
	Users         UserStore
	Materials     MaterialSource
	Prompts       *PromptBuilder
	Model         ChatModel
	Metrics       *metrics.Metrics
	Clock         func() time.Time
}

// AskRequest is one student question with its learning context
type AskRequest struct {
	Question  string `json:"question"`
	Week      string `json:"week"`
	Level     string `json:"level"`
	Gender    string `json:"gender"`
	Language  string `json:"language"`
	SessionID string `json:"sessionId,omitempty"`
}

// AskResult is the answer and the updated conversation
type AskResult struct {
	Answer      string              `json:"answer"`
	Language    string              `json:"language"`
	Direction   string              `json:"direction"`
	MessageID   string              `json:"_id"`
	SessionID   string              `json:"sessionId"`
	ChatSession *models.ChatSession `json:"chatSession"`
	Usage       *Allowance          `json:"usage,omitempty"`
	Premium     bool                `json:"isPremium"`
	Degraded    bool                `json:"degraded,omitempty"`
}

// Tutor answers student questions
type Tutor struct {
	subs      *SubscriptionState
	ledger    *UsageLedger
	sessions  *SessionStore
	users     UserStore
	materials MaterialSource
	prompts   *PromptBuilder
	model     ChatModel
	metrics   *metrics.Metrics
	now       func() time.Time
	log       *logger.Logger
}

// NewTutor creates a Tutor
func NewTutor(deps TutorDeps) *Tutor {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBuilder(nil, 5)
	}
	return &Tutor{
		subs:      deps.Subscriptions,
		ledger:    deps.Ledger,
		sessions:  deps.Sessions,
		users:     deps.Users,
		materials: deps.Materials,
		prompts:   deps.Prompts,
		model:     deps.Model,
		metrics:   deps.Metrics,
		now:       deps.Clock,
		log:       logger.GetLogger("tutor"),
	}
}

// NormalizeWeek strips a "week" prefix and zero-pads to two digits
func NormalizeWeek(week string) string {
	w := strings.ToLower(strings.TrimSpace(week))
	w = strings.ReplaceAll(w, "week", "")
	w = strings.Trim(w, " _-")
	if w == "" {
		return DefaultWeek
	}
	if n, err := strconv.Atoi(w); err == nil && n >= 0 {
		return fmt.Sprintf("%02d", n)
	}
	return w
}

// Direction returns the text direction for a response language
func Direction(language string) string {
	if strings.EqualFold(language, "arabic") {
		return "rtl"
	}
	return "ltr"
}

func (r *AskRequest) applyDefaults() {
	r.Question = strings.TrimSpace(r.Question)
	r.Week = NormalizeWeek(r.Week)
	if r.Level = strings.TrimSpace(r.Level); r.Level == "" {
		r.Level = DefaultLevel
	}
	if r.Gender = strings.TrimSpace(r.Gender); r.Gender == "" {
		r.Gender = DefaultGender
	}
	if r.Language = strings.TrimSpace(r.Language); r.Language == "" {
		r.Language = DefaultLanguage
	}
	r.SessionID = strings.TrimSpace(r.SessionID)
}

// Ask runs one question through quota, session, prompt and model. Usage is
// charged only after the exchange has been saved, and never for premium
// users or for fallback answers.
func (t *Tutor) Ask(ctx context.Context, id Identity, req AskRequest) (*AskResult, error) {
	req.applyDefaults()
	if req.Question == "" {
		return nil, NewValidationError("question", "Question is required")
	}

	premium, err := t.subs.IsPremium(ctx, id.UID)
	if err != nil {
		t.log.ErrorWithFieldsCtx(ctx, "Premium check failed, treating as free user", map[string]interface{}{
			"user_id": id.UID,
		}, err)
		t.metrics.Error("subscription")
		premium = false
	}

	var usage *Allowance
	if !premium {
		allowance, err := t.ledger.CanPost(ctx, id.UID)
		if err != nil {
			return nil, err
		}
		if !allowance.Allowed {
			t.metrics.QuotaRejected()
			t.log.InfoWithFieldsCtx(ctx, "Monthly quota reached", map[string]interface{}{
				"user_id": id.UID,
				"used":    allowance.Used,
				"limit":   allowance.Limit,
			})
			return nil, &QuotaExceededError{
				Limit:     allowance.Limit,
				Used:      allowance.Used,
				SessionID: t.quotaSessionHint(id, req),
			}
		}
		usage = &allowance
	}

	key, err := t.sessions.SessionKey(ctx, id.UID, req.SessionID)
	if err != nil {
		return nil, err
	}

	var (
		session   *models.ChatSession
		materials []Material
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := t.users.EnsureUser(gctx, models.User{
			UserID:        id.UID,
			Email:         id.Email,
			DisplayName:   id.DisplayName,
			TotalMessages: map[string]int{},
			CreatedAt:     t.now().UTC(),
			UpdatedAt:     t.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to ensure user: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s, err := t.sessions.LoadOrCreate(gctx, key, SessionSeed{
			UserID:    id.UID,
			UserEmail: id.Email,
			UserName:  id.DisplayName,
			Level:     req.Level,
			Language:  req.Language,
			Week:      req.Week,
			Gender:    req.Gender,
		})
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	g.Go(func() error {
		materials = t.loadMaterials(gctx, req.Level, req.Week)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	systemPrompt := t.prompts.Build(StudentProfile{
		Level:    req.Level,
		Week:     req.Week,
		Gender:   req.Gender,
		Language: req.Language,
	}, materials, session)

	userMsg := t.sessions.NewMessage(id.UID, models.SenderUser, req.Question)
	answer, degraded := t.complete(ctx, id, systemPrompt, req.Question)
	botMsg := t.sessions.NewMessage(id.UID, models.SenderBot, answer)
	updated, err := t.sessions.Append(ctx, session, userMsg, botMsg)
	if err != nil {
		return nil, err
	}

	if !premium && !degraded {
		allowance, err := t.ledger.RecordPost(ctx, id.UID)
		switch {
		case errors.Is(err, ErrQuotaExceeded):
			t.log.WarnWithFieldsCtx(ctx, "Quota reached by a concurrent request, answer already saved", map[string]interface{}{
				"user_id":    id.UID,
				"session_id": updated.ID,
			})
			usage = &allowance
		case err != nil:
			t.log.ErrorWithFieldsCtx(ctx, "Failed to record usage", map[string]interface{}{
				"user_id": id.UID,
			}, err)
			t.metrics.Error("ledger")
		default:
			usage = &allowance
		}
	}

	return &AskResult{
		Answer:      answer,
		Language:    req.Language,
		Direction:   Direction(req.Language),
		MessageID:   botMsg.ID,
		SessionID:   updated.ID,
		ChatSession: updated,
		Usage:       usage,
		Premium:     premium,
		Degraded:    degraded,
	}, nil
}

func (t *Tutor) quotaSessionHint(id Identity, req AskRequest) string {
	if t.sessions.Policy() == config.SessionPerUser {
		return id.UID
	}
	return req.SessionID
}

func (t *Tutor) loadMaterials(ctx context.Context, level, week string) []Material {
	if t.materials == nil {
		return nil
	}
	materials, err := t.materials.Materials(ctx, level, week)
	if err != nil {
		t.log.WarnWithFieldsCtx(ctx, "Materials unavailable, continuing without", map[string]interface{}{
			"level": level,
			"week":  week,
			"error": err.Error(),
		})
		t.metrics.Error("materials")
		return nil
	}
	return materials
}

// complete calls the model, returning the fallback answer and degraded=true
// on failure
func (t *Tutor) complete(ctx context.Context, id Identity, systemPrompt, question string) (string, bool) {
	if t.model == nil {
		return FallbackAnswer, true
	}
	answer, err := t.model.Complete(ctx, systemPrompt, question)
	if err != nil {
		t.log.ErrorWithFieldsCtx(ctx, "Model call failed, returning fallback answer", map[string]interface{}{
			"user_id": id.UID,
		}, err)
		t.metrics.Error("model")
		return FallbackAnswer, true
	}
	return answer, false
}
