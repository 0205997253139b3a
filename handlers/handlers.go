package handlers

import (
	"context"
	"time"

	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
	"github.com/LaithMimi/blendarchatbot2/services"
)

// Asker answers tutoring questions
type Asker interface {
	Ask(ctx context.Context, id services.Identity, req services.AskRequest) (*services.AskResult, error)
}

// UsageReader reports the caller's monthly allowance
type UsageReader interface {
	CanPost(ctx context.Context, userID string) (services.Allowance, error)
}

// SubscriptionReader returns the caller's subscription after read-repair
type SubscriptionReader interface {
	Current(ctx context.Context, userID string) (*models.Subscription, error)
}

// ChatLogAdmin serves the admin chat log operations
type ChatLogAdmin interface {
	List(ctx context.Context, q services.ChatLogQuery) (*services.ChatLogPage, error)
	Get(ctx context.Context, sessionID string) (*models.ChatSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAll(ctx context.Context) (int, error)
}

// BillingService runs the subscription payment lifecycle
type BillingService interface {
	CreatePayment(ctx context.Context, id services.Identity, in services.CreatePaymentInput) (*services.CreatePaymentResult, error)
	VerifyPayment(ctx context.Context, id services.Identity, transactionID string) (*services.VerifyResult, error)
	Cancel(ctx context.Context, id services.Identity) (*models.Subscription, error)
	ChangePlan(ctx context.Context, id services.Identity, plan, cycle string) (*models.Subscription, error)
	HandleWebhook(ctx context.Context, p *meshulam.WebhookPayload) (*services.WebhookResult, error)
}

// Pinger checks that the primary store is reachable
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

// Handler holds the dependencies of every HTTP handler
type Handler struct {
	tutor           Asker
	usage           UsageReader
	subscriptions   SubscriptionReader
	chatLogs        ChatLogAdmin
	billing         BillingService
	store           Pinger
	metrics         *metrics.Metrics
	webhookSecret   string
	staticDir       string
	version         string
	modelConfigured bool
	now             func() time.Time
	log             *logger.Logger
}

// Options configures a Handler
type Options struct {
	Tutor           Asker
	Usage           UsageReader
	Subscriptions   SubscriptionReader
	ChatLogs        ChatLogAdmin
	Billing         BillingService
	Store           Pinger
	Metrics         *metrics.Metrics
	WebhookSecret   string
	StaticDir       string
	Version         string
	ModelConfigured bool
}

// New creates a Handler
func New(opts Options) *Handler {
	return &Handler{
		tutor:           opts.Tutor,
		usage:           opts.Usage,
		subscriptions:   opts.Subscriptions,
		chatLogs:        opts.ChatLogs,
		billing:         opts.Billing,
		store:           opts.Store,
		metrics:         opts.Metrics,
		webhookSecret:   opts.WebhookSecret,
		staticDir:       opts.StaticDir,
		version:         opts.Version,
		modelConfigured: opts.ModelConfigured,
		now:             time.Now,
		log:             logger.GetLogger("handlers"),
	}
}
