package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/models"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// PaymentGateway is the payment provider. *meshulam.Client satisfies it.
type PaymentGateway interface {
	CreatePaymentProcess(ctx context.Context, req meshulam.PaymentRequest) (*meshulam.Response, error)
	GetTransactionInfo(ctx context.Context, transactionID string) (*meshulam.Response, error)
	StopRecurringPayment(ctx context.Context, recurringTransactionID string) (*meshulam.Response, error)
}

// TransactionStore persists payment transactions. GetTransaction returns
// nil, nil when the transaction does not exist.
type TransactionStore interface {
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	PutTransaction(ctx context.Context, tx models.Transaction) error
	UpdateTransactionStatus(ctx context.Context, transactionID, status string, at time.Time) error
}

// PayerDirectory resolves a payer email to a UID, creating the account when
// no user has that email
type PayerDirectory interface {
	LookupOrCreateByEmail(ctx context.Context, email, displayName string) (uid string, created bool, err error)
}

// BillingDeps are the collaborators of Billing
type BillingDeps struct {
	Gateway       PaymentGateway
	Transactions  TransactionStore
	Subscriptions SubscriptionStore
	Users         UserStore
	Directory     PayerDirectory
	Plans         config.PlanCatalog
	Metrics       *metrics.Metrics
	Clock         func() time.Time
	// StopTimeout bounds the background stop-recurring call on plan change
	StopTimeout time.Duration
}

// Billing runs the subscription payment lifecycle
type Billing struct {
	gateway     PaymentGateway
	txs         TransactionStore
	subs        SubscriptionStore
	users       UserStore
	directory   PayerDirectory
	plans       config.PlanCatalog
	metrics     *metrics.Metrics
	now         func() time.Time
	stopTimeout time.Duration
	background  sync.WaitGroup
	log         *logger.Logger
}

// NewBilling creates a Billing service
func NewBilling(deps BillingDeps) *Billing {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = 15 * time.Second
	}
	return &Billing{
		gateway:     deps.Gateway,
		txs:         deps.Transactions,
		subs:        deps.Subscriptions,
		users:       deps.Users,
		directory:   deps.Directory,
		plans:       deps.Plans,
		metrics:     deps.Metrics,
		now:         deps.Clock,
		stopTimeout: deps.StopTimeout,
		log:         logger.GetLogger("billing"),
	}
}

// Wait blocks until background gateway calls have finished
func (b *Billing) Wait() {
	b.background.Wait()
}

// CreatePaymentInput is a request to open a payment page
type CreatePaymentInput struct {
	Plan         string
	BillingCycle string
	FirstName    string
	LastName     string
	Phone        string
}

// CreatePaymentResult is what the client needs to redirect the payer
type CreatePaymentResult struct {
	URL           string  `json:"url"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
}

// VerifyResult is the outcome of a payment verification
type VerifyResult struct {
	Verified     bool                 `json:"verified"`
	Status       string               `json:"status"`
	Message      string               `json:"message,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// WebhookResult is the outcome of a processed payment notification
type WebhookResult struct {
	UserID        string `json:"userId"`
	TransactionID string `json:"transactionId"`
	BillingCycle  string `json:"billingCycle"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Failed        bool   `json:"failed,omitempty"`
	UserCreated   bool   `json:"userCreated,omitempty"`
}

// CreatePayment prices the plan from the catalogue, opens a gateway payment
// page and records a pending transaction. No subscription is written until
// the payment is verified.
func (b *Billing) CreatePayment(ctx context.Context, id Identity, in CreatePaymentInput) (*CreatePaymentResult, error) {
	if in.Plan == "" {
		return nil, NewValidationError("plan", "plan is required")
	}
	if !models.IsValidPlan(in.Plan) {
		return nil, NewValidationError("plan", fmt.Sprintf("unknown plan %q", in.Plan))
	}
	if in.Plan == models.PlanBasic {
		return nil, NewValidationError("plan", "the basic plan does not require payment")
	}
	if !models.IsValidBillingCycle(in.BillingCycle) {
		return nil, NewValidationError("billingCycle", "billingCycle must be monthly or yearly")
	}

	amount, err := b.plans.Price(in.Plan, in.BillingCycle)
	if err != nil {
		return nil, NewValidationError("plan", err.Error())
	}
	description := b.plans.Description(in.Plan, in.BillingCycle)

	req := meshulam.PaymentRequest{
		UserID:      id.UID,
		Email:       id.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		Sum:         amount,
		Description: description,
		PaymentType: meshulam.PaymentRecurring,
		MaxPayments: 1,
		CustomFields: map[string]string{
			"userId":       id.UID,
			"plan":         in.Plan,
			"billingCycle": in.BillingCycle,
		},
	}
	if in.BillingCycle == models.BillingYearly {
		req.PaymentType = meshulam.PaymentRegular
		req.MaxPayments = 12
	}

	resp, err := b.gateway.CreatePaymentProcess(ctx, req)
	b.metrics.ObserveGateway(meshulam.OpCreatePayment, err)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", ErrUpstreamUnavailable, err)
	}
	if !resp.OK() || resp.Data.URL == "" || resp.Data.TransactionID == "" {
		return nil, fmt.Errorf("%w: create payment rejected: %s", ErrUpstreamUnavailable, gatewayMessage(resp))
	}

	now := b.now().UTC()
	tx := models.Transaction{
		TransactionID: resp.Data.TransactionID,
		UserID:        id.UID,
		UserEmail:     id.Email,
		Amount:        amount,
		Plan:          in.Plan,
		BillingCycle:  in.BillingCycle,
		Description:   description,
		Status:        models.TransactionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := b.txs.PutTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	b.log.InfoWithFieldsCtx(ctx, "Payment process created", map[string]interface{}{
		"user_id":        id.UID,
		"transaction_id": tx.TransactionID,
		"plan":           in.Plan,
		"billing_cycle":  in.BillingCycle,
		"amount":         amount,
	})

	return &CreatePaymentResult{
		URL:           resp.Data.URL,
		TransactionID: tx.TransactionID,
		Amount:        amount,
		Description:   description,
	}, nil
}

// VerifyPayment confirms a transaction with the gateway and activates the
// subscription it paid for. The transaction must belong to the caller.
func (b *Billing) VerifyPayment(ctx context.Context, id Identity, transactionID string) (*VerifyResult, error) {
	if transactionID == "" {
		return nil, NewValidationError("transactionId", "transactionId is required")
	}

	tx, err := b.txs.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil || tx.UserID != id.UID {
		return nil, ErrNotFound
	}

	if tx.Status == models.TransactionCompleted {
		sub, err := b.subs.GetSubscription(ctx, id.UID)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscription: %w", err)
		}
		return &VerifyResult{Verified: true, Status: tx.Status, Subscription: sub}, nil
	}

	resp, err := b.gateway.GetTransactionInfo(ctx, transactionID)
	b.metrics.ObserveGateway(meshulam.OpTransaction, err)
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction: %v", ErrUpstreamUnavailable, err)
	}

	now := b.now().UTC()
	switch {
	case !resp.OK() || resp.Data.Status == meshulam.TxStatusFailed:
		if err := b.txs.UpdateTransactionStatus(ctx, transactionID, models.TransactionFailed, now); err != nil {
			return nil, fmt.Errorf("failed to update transaction: %w", err)
		}
		b.log.WarnWithFieldsCtx(ctx, "Payment verification failed", map[string]interface{}{
			"user_id":        id.UID,
			"transaction_id": transactionID,
			"gateway":        gatewayMessage(resp),
		})
		return &VerifyResult{Verified: false, Status: models.TransactionFailed, Message: gatewayMessage(resp)}, nil
	case resp.Data.Status == meshulam.TxStatusPending:
		return &VerifyResult{Verified: false, Status: models.TransactionPending, Message: "payment is still pending"}, nil
	case resp.Data.Status != meshulam.TxStatusCompleted:
		b.log.WarnWithFieldsCtx(ctx, "Payment not completed", map[string]interface{}{
			"user_id":        id.UID,
			"transaction_id": transactionID,
			"gateway_status": resp.Data.Status,
		})
		return &VerifyResult{
			Verified: false,
			Status:   tx.Status,
			Message:  fmt.Sprintf("payment status %q is not completed", resp.Data.Status),
		}, nil
	}

	sub, err := b.activate(ctx, activation{
		userID:        id.UID,
		email:         id.Email,
		plan:          tx.Plan,
		cycle:         tx.BillingCycle,
		transactionID: transactionID,
		refs: models.GatewayRefs{
			CustomerID:             resp.Data.CustomerID,
			RecurringTransactionID: resp.Data.RecurringTransactionID,
		},
		at: now,
	})
	if err != nil {
		return nil, err
	}
	if err := b.txs.UpdateTransactionStatus(ctx, transactionID, models.TransactionCompleted, now); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	b.log.InfoWithFieldsCtx(ctx, "Payment verified, subscription active", map[string]interface{}{
		"user_id":        id.UID,
		"transaction_id": transactionID,
		"end_date":       sub.EndDate.Format(time.RFC3339),
	})
	return &VerifyResult{Verified: true, Status: models.TransactionCompleted, Subscription: sub}, nil
}

// Cancel stops the recurring charge and ends premium access immediately
func (b *Billing) Cancel(ctx context.Context, id Identity) (*models.Subscription, error) {
	sub, err := b.subs.GetSubscription(ctx, id.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	if ref := sub.Meshulam.RecurringTransactionID; ref != "" {
		if err := b.stopRecurring(ctx, ref); err != nil {
			return nil, err
		}
	}

	now := b.now().UTC()
	if err := b.subs.CancelSubscription(ctx, id.UID, now); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if err := b.users.SetPremium(ctx, id.UID, id.Email, false, now); err != nil {
		return nil, fmt.Errorf("failed to clear premium flag: %w", err)
	}

	sub.Status = models.StatusCancelled
	sub.AutoRenew = false
	sub.UpdatedAt = now

	b.log.InfoWithFieldsCtx(ctx, "Subscription cancelled", map[string]interface{}{
		"user_id": id.UID,
	})
	return sub, nil
}

// ChangePlan moves the caller to another plan. Moving to basic cancels.
// Moving to a paid plan requires a subscription that still grants premium;
// lapsed or cancelled users go through checkout. Between paid plans the old recurring charge is stopped in the background
// and the new period starts now.
func (b *Billing) ChangePlan(ctx context.Context, id Identity, plan, cycle string) (*models.Subscription, error) {
	if !models.IsValidPlan(plan) {
		return nil, NewValidationError("newPlan", fmt.Sprintf("unknown plan %q", plan))
	}
	if plan != models.PlanBasic && !models.IsValidBillingCycle(cycle) {
		return nil, NewValidationError("billingCycle", "billingCycle must be monthly or yearly")
	}

	sub, err := b.subs.GetSubscription(ctx, id.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	if sub.Plan == plan && (plan == models.PlanBasic || sub.BillingCycle == cycle) {
		return sub, nil
	}
	if plan == models.PlanBasic {
		return b.Cancel(ctx, id)
	}
	if !sub.GrantsPremium(b.now()) {
		return nil, NewValidationError("newPlan", "no active subscription to change; subscribe to a paid plan instead")
	}

	if ref := sub.Meshulam.RecurringTransactionID; ref != "" {
		b.stopRecurringInBackground(ctx, id.UID, ref)
		sub.Meshulam.RecurringTransactionID = ""
	}

	now := b.now().UTC()
	sub.Plan = plan
	sub.BillingCycle = cycle
	sub.Status = models.StatusActive
	sub.AutoRenew = true
	sub.EndDate = now.Add(models.CycleDuration(cycle))
	sub.UpdatedAt = now
	if sub.UserEmail == "" {
		sub.UserEmail = id.Email
	}

	if err := b.subs.PutSubscription(ctx, *sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := b.users.SetPremium(ctx, id.UID, id.Email, true, now); err != nil {
		return nil, fmt.Errorf("failed to set premium flag: %w", err)
	}

	b.log.InfoWithFieldsCtx(ctx, "Subscription plan changed", map[string]interface{}{
		"user_id":       id.UID,
		"plan":          plan,
		"billing_cycle": cycle,
		"end_date":      sub.EndDate.Format(time.RFC3339),
	})
	return sub, nil
}

// HandleWebhook applies a gateway payment notification. A notification for
// a transaction that is already completed is acknowledged without writes.
func (b *Billing) HandleWebhook(ctx context.Context, p *meshulam.WebhookPayload) (*WebhookResult, error) {
	if p == nil || strings.TrimSpace(p.PayerEmail) == "" {
		b.metrics.Webhook("rejected")
		return nil, NewValidationError("payerEmail", "No payer email provided")
	}
	if strings.TrimSpace(p.TransactionCode) == "" {
		b.metrics.Webhook("rejected")
		return nil, NewValidationError("transactionCode", "No transaction code provided")
	}
	email := strings.TrimSpace(p.PayerEmail)
	cycle := b.webhookCycle(p)

	existing, err := b.txs.GetTransaction(ctx, p.TransactionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if existing != nil && existing.Status == models.TransactionCompleted {
		b.metrics.Webhook("duplicate")
		return &WebhookResult{
			UserID:        existing.UserID,
			TransactionID: existing.TransactionID,
			BillingCycle:  existing.BillingCycle,
			Duplicate:     true,
		}, nil
	}

	userID, created, err := b.resolvePayer(ctx, p, email)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	tx := models.Transaction{
		TransactionID: p.TransactionCode,
		UserID:        userID,
		UserEmail:     email,
		Amount:        p.PaymentSum,
		Plan:          models.PlanPremium,
		BillingCycle:  cycle,
		Description:   p.PaymentDesc,
		Status:        models.TransactionCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing != nil {
		tx.CreatedAt = existing.CreatedAt
		if existing.Plan != "" {
			tx.Plan = existing.Plan
		}
	}
	result := &WebhookResult{
		UserID:        userID,
		TransactionID: p.TransactionCode,
		BillingCycle:  cycle,
		UserCreated:   created,
	}

	if p.ErrorMessage != "" {
		tx.Status = models.TransactionFailed
		if err := b.txs.PutTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to record transaction: %w", err)
		}
		b.metrics.Webhook("failed")
		b.log.WarnWithFieldsCtx(ctx, "Gateway reported failed payment", map[string]interface{}{
			"user_id":          userID,
			"transaction_code": p.TransactionCode,
			"error_message":    p.ErrorMessage,
		})
		result.Failed = true
		return result, nil
	}

	if _, err := b.activate(ctx, activation{
		userID:        userID,
		email:         email,
		plan:          tx.Plan,
		cycle:         cycle,
		transactionID: p.TransactionCode,
		refs:          models.GatewayRefs{RecurringTransactionID: p.DirectDebitID},
		at:            now,
	}); err != nil {
		return nil, err
	}
	if err := b.txs.PutTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	b.metrics.Webhook("activated")
	b.log.InfoWithFieldsCtx(ctx, "Webhook payment applied", map[string]interface{}{
		"user_id":          userID,
		"transaction_code": p.TransactionCode,
		"billing_cycle":    cycle,
		"amount":           p.PaymentSum,
		"user_created":     created,
	})
	return result, nil
}

// webhookCycle prefers an explicit cycle and falls back to the amount
func (b *Billing) webhookCycle(p *meshulam.WebhookPayload) string {
	if strings.EqualFold(p.PaymentType, models.BillingYearly) {
		return models.BillingYearly
	}
	if c := strings.ToLower(p.CustomField("billingCycle")); models.IsValidBillingCycle(c) {
		return c
	}
	if b.plans.LooksYearly(p.PaymentSum) {
		return models.BillingYearly
	}
	return models.BillingMonthly
}

func (b *Billing) resolvePayer(ctx context.Context, p *meshulam.WebhookPayload, email string) (string, bool, error) {
	if uid := strings.TrimSpace(p.CustomField("userId")); uid != "" {
		return uid, false, nil
	}
	if b.directory == nil {
		return "", false, fmt.Errorf("payer directory not configured")
	}
	uid, created, err := b.directory.LookupOrCreateByEmail(ctx, email, models.DisplayNameFromEmail(email, email))
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve payer %s: %w", email, err)
	}
	if created {
		b.log.InfoWithFieldsCtx(ctx, "Created user for payer", map[string]interface{}{
			"user_id": uid,
		})
	}
	return uid, created, nil
}

type activation struct {
	userID        string
	email         string
	plan          string
	cycle         string
	transactionID string
	refs          models.GatewayRefs
	at            time.Time
}

// activate upserts an active subscription and sets the premium flag
func (b *Billing) activate(ctx context.Context, a activation) (*models.Subscription, error) {
	existing, err := b.subs.GetSubscription(ctx, a.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	plan := a.plan
	if plan == "" || plan == models.PlanBasic {
		plan = models.PlanPremium
	}
	cycle := a.cycle
	if !models.IsValidBillingCycle(cycle) {
		cycle = models.BillingMonthly
	}

	sub := models.Subscription{
		UserID:        a.userID,
		UserEmail:     a.email,
		Plan:          plan,
		BillingCycle:  cycle,
		Status:        models.StatusActive,
		StartDate:     a.at,
		EndDate:       a.at.Add(models.CycleDuration(cycle)),
		AutoRenew:     true,
		PaymentMethod: "meshulam",
		TransactionID: a.transactionID,
		Meshulam:      a.refs,
		CreatedAt:     a.at,
		UpdatedAt:     a.at,
	}
	if existing != nil {
		sub.CreatedAt = existing.CreatedAt
		if sub.Meshulam.CustomerID == "" {
			sub.Meshulam.CustomerID = existing.Meshulam.CustomerID
		}
	}

	if err := b.subs.PutSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := b.users.SetPremium(ctx, a.userID, a.email, true, a.at); err != nil {
		return nil, fmt.Errorf("failed to set premium flag: %w", err)
	}
	return &sub, nil
}

func (b *Billing) stopRecurring(ctx context.Context, recurringID string) error {
	resp, err := b.gateway.StopRecurringPayment(ctx, recurringID)
	b.metrics.ObserveGateway(meshulam.OpStopRecurring, err)
	if err != nil {
		return fmt.Errorf("%w: stop recurring: %v", ErrUpstreamUnavailable, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: stop recurring rejected: %s", ErrUpstreamUnavailable, gatewayMessage(resp))
	}
	return nil
}

func (b *Billing) stopRecurringInBackground(ctx context.Context, userID, recurringID string) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.stopTimeout)
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		defer cancel()
		if err := b.stopRecurring(bg, recurringID); err != nil {
			b.log.ErrorWithFieldsCtx(bg, "Failed to stop old recurring payment", map[string]interface{}{
				"user_id":                  userID,
				"recurring_transaction_id": recurringID,
			}, err)
		}
	}()
}

func gatewayMessage(resp *meshulam.Response) string {
	if resp == nil {
		return "no response"
	}
	if resp.Data.Message != "" {
		return resp.Data.Message
	}
	if resp.Err != "" {
		return resp.Err
	}
	return fmt.Sprintf("status %d", resp.Status)
}
