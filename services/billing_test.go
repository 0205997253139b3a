package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/meshulam"
	"github.com/LaithMimi/blendarchatbot2/models"
)

type billingFixture struct {
	now      time.Time
	gateway  *fakeGateway
	txs      *memTransactions
	subs     *memSubs
	users    *memUsers
	dir      *fakeDirectory
	billing  *Billing
	identity Identity
}

func newBillingFixture() *billingFixture {
	f := &billingFixture{
		now: time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		gateway: &fakeGateway{
			createResp: &meshulam.Response{Status: 1, Data: meshulam.ResponseData{URL: "https://pay.example/abc", TransactionID: "tx-1"}},
			infoResp:   &meshulam.Response{Status: 1, Data: meshulam.ResponseData{Status: "completed", CustomerID: "c-9", RecurringTransactionID: "r-9"}},
		},
		txs:      newMemTransactions(),
		subs:     newMemSubs(),
		users:    newMemUsers(),
		dir:      &fakeDirectory{},
		identity: Identity{UID: "u1", Email: "dana@example.com"},
	}
	f.billing = NewBilling(BillingDeps{
		Gateway:       f.gateway,
		Transactions:  f.txs,
		Subscriptions: f.subs,
		Users:         f.users,
		Directory:     f.dir,
		Plans:         config.DefaultPlanCatalog(),
		Clock:         fixedClock(f.now),
		StopTimeout:   time.Second,
	})
	return f
}

func TestCreatePaymentRecordsPendingTransaction(t *testing.T) {
	f := newBillingFixture()

	res, err := f.billing.CreatePayment(context.Background(), f.identity, CreatePaymentInput{Plan: "premium", BillingCycle: "yearly"})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if res.URL != "https://pay.example/abc" || res.TransactionID != "tx-1" {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.Amount != 288 {
		t.Errorf("Expected catalogue price 288, got %v", res.Amount)
	}

	tx := f.txs.txs["tx-1"]
	if tx.Status != models.TransactionPending || tx.BillingCycle != models.BillingYearly || tx.UserID != "u1" {
		t.Errorf("Expected pending yearly transaction for u1, got %+v", tx)
	}
	if len(f.subs.subs) != 0 {
		t.Error("Expected no subscription before verification")
	}
	if req := f.gateway.created[0]; req.PaymentType != meshulam.PaymentRegular || req.Sum != 288 {
		t.Errorf("Expected regular payment of 288 for yearly, got %+v", req)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newBillingFixture()
	cases := []CreatePaymentInput{
		{Plan: "", BillingCycle: "monthly"},
		{Plan: "gold", BillingCycle: "monthly"},
		{Plan: "basic", BillingCycle: "monthly"},
		{Plan: "premium", BillingCycle: "weekly"},
	}
	for _, in := range cases {
		_, err := f.billing.CreatePayment(context.Background(), f.identity, in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Expected ValidationError for %+v, got %v", in, err)
		}
	}
	if len(f.gateway.created) != 0 {
		t.Error("Expected no gateway calls for invalid input")
	}
}

func TestCreatePaymentGatewayFailure(t *testing.T) {
	f := newBillingFixture()
	f.gateway.err = errors.New("connection reset")

	_, err := f.billing.CreatePayment(context.Background(), f.identity, CreatePaymentInput{Plan: "premium", BillingCycle: "monthly"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if len(f.txs.txs) != 0 {
		t.Error("Expected no transaction on gateway failure")
	}
}

func TestVerifyPaymentActivates(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	if _, err := f.billing.CreatePayment(ctx, f.identity, CreatePaymentInput{Plan: "premium", BillingCycle: "monthly"}); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	res, err := f.billing.VerifyPayment(ctx, f.identity, "tx-1")
	if err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}
	if !res.Verified {
		t.Fatal("Expected payment to be verified")
	}
	sub := f.subs.subs["u1"]
	if sub.Status != models.StatusActive || !sub.EndDate.Equal(f.now.Add(30*24*time.Hour)) {
		t.Errorf("Expected active subscription ending in 30 days, got %+v", sub)
	}
	if sub.Meshulam.RecurringTransactionID != "r-9" {
		t.Errorf("Expected recurring id from gateway, got %q", sub.Meshulam.RecurringTransactionID)
	}
	if !f.users.users["u1"].IsPremium {
		t.Error("Expected isPremium to be set")
	}
	if f.txs.txs["tx-1"].Status != models.TransactionCompleted {
		t.Errorf("Expected completed transaction, got %s", f.txs.txs["tx-1"].Status)
	}
}

func TestVerifyPaymentOtherUsersTransaction(t *testing.T) {
	f := newBillingFixture()
	f.txs.txs["tx-2"] = models.Transaction{TransactionID: "tx-2", UserID: "someone-else", Status: models.TransactionPending}

	if _, err := f.billing.VerifyPayment(context.Background(), f.identity, "tx-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.billing.VerifyPayment(context.Background(), f.identity, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVerifyPaymentGatewayDeclined(t *testing.T) {
	f := newBillingFixture()
	f.txs.txs["tx-3"] = models.Transaction{TransactionID: "tx-3", UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.TransactionPending}
	f.gateway.infoResp = &meshulam.Response{Status: 0, Err: "declined"}

	res, err := f.billing.VerifyPayment(context.Background(), f.identity, "tx-3")
	if err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}
	if res.Verified {
		t.Error("Expected declined payment not to verify")
	}
	if f.txs.txs["tx-3"].Status != models.TransactionFailed {
		t.Errorf("Expected failed transaction, got %s", f.txs.txs["tx-3"].Status)
	}
	if len(f.subs.subs) != 0 {
		t.Error("Expected no subscription for declined payment")
	}
}

func TestVerifyPaymentRequiresCompletedStatus(t *testing.T) {
	for _, status := range []string{"refunded", ""} {
		f := newBillingFixture()
		f.txs.txs["tx-4"] = models.Transaction{TransactionID: "tx-4", UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.TransactionPending}
		f.gateway.infoResp = &meshulam.Response{Status: 1, Data: meshulam.ResponseData{Status: status, RecurringTransactionID: "r-4"}}

		res, err := f.billing.VerifyPayment(context.Background(), f.identity, "tx-4")
		if err != nil {
			t.Fatalf("VerifyPayment with status %q failed: %v", status, err)
		}
		if res.Verified {
			t.Errorf("Expected status %q not to verify", status)
		}
		if len(f.subs.subs) != 0 {
			t.Errorf("Expected no subscription for status %q, got %+v", status, f.subs.subs["u1"])
		}
		if f.users.users["u1"].IsPremium {
			t.Errorf("Expected no premium flag for status %q", status)
		}
		if got := f.txs.txs["tx-4"].Status; got != models.TransactionPending {
			t.Errorf("Expected transaction to stay pending for status %q, got %s", status, got)
		}
	}
}

func TestCancel(t *testing.T) {
	f := newBillingFixture()
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Plan: "premium", Status: models.StatusActive, AutoRenew: true,
		EndDate: f.now.Add(10 * 24 * time.Hour), Meshulam: models.GatewayRefs{RecurringTransactionID: "r-1"}}
	f.users.users["u1"] = models.User{UserID: "u1", IsPremium: true}

	sub, err := f.billing.Cancel(context.Background(), f.identity)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if sub.Status != models.StatusCancelled || sub.AutoRenew {
		t.Errorf("Expected cancelled without auto-renew, got %+v", sub)
	}
	if f.users.users["u1"].IsPremium {
		t.Error("Expected isPremium cleared immediately")
	}
	if len(f.gateway.stopped) != 1 || f.gateway.stopped[0] != "r-1" {
		t.Errorf("Expected recurring r-1 to be stopped, got %v", f.gateway.stopped)
	}
}

func TestCancelGatewayFailure(t *testing.T) {
	f := newBillingFixture()
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Status: models.StatusActive, Meshulam: models.GatewayRefs{RecurringTransactionID: "r-1"}}
	f.gateway.stopErr = errors.New("timeout")

	if _, err := f.billing.Cancel(context.Background(), f.identity); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if f.subs.subs["u1"].Status != models.StatusActive {
		t.Error("Expected subscription unchanged when the gateway fails")
	}
}

func TestCancelWithoutSubscription(t *testing.T) {
	f := newBillingFixture()
	if _, err := f.billing.Cancel(context.Background(), f.identity); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestChangePlanBetweenPaidPlans(t *testing.T) {
	f := newBillingFixture()
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusActive,
		EndDate: f.now.Add(5 * 24 * time.Hour), Meshulam: models.GatewayRefs{RecurringTransactionID: "r-old"}}

	sub, err := f.billing.ChangePlan(context.Background(), f.identity, "premium", "yearly")
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	f.billing.Wait()

	if sub.BillingCycle != "yearly" || !sub.EndDate.Equal(f.now.Add(365*24*time.Hour)) {
		t.Errorf("Expected yearly plan ending in 365 days, got %+v", sub)
	}
	if len(f.gateway.stopped) != 1 || f.gateway.stopped[0] != "r-old" {
		t.Errorf("Expected old recurring payment stopped, got %v", f.gateway.stopped)
	}
}

func TestChangePlanStopFailureIsBestEffort(t *testing.T) {
	f := newBillingFixture()
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Plan: "premium", BillingCycle: "yearly", Status: models.StatusActive,
		EndDate: f.now.Add(100 * 24 * time.Hour), Meshulam: models.GatewayRefs{RecurringTransactionID: "r-old"}}
	f.gateway.stopErr = errors.New("gateway down")

	if _, err := f.billing.ChangePlan(context.Background(), f.identity, "premium", "monthly"); err != nil {
		t.Fatalf("Expected plan change to succeed despite stop failure, got %v", err)
	}
	f.billing.Wait()
	if f.subs.subs["u1"].BillingCycle != "monthly" {
		t.Error("Expected new billing cycle to be saved")
	}
}

func TestChangePlanToBasicCancels(t *testing.T) {
	f := newBillingFixture()
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusActive}

	sub, err := f.billing.ChangePlan(context.Background(), f.identity, "basic", "")
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	if sub.Status != models.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", sub.Status)
	}
}

func TestChangePlanSamePlanIsNoop(t *testing.T) {
	f := newBillingFixture()
	end := f.now.Add(3 * 24 * time.Hour)
	f.subs.subs["u1"] = models.Subscription{UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusActive, EndDate: end}

	sub, err := f.billing.ChangePlan(context.Background(), f.identity, "premium", "monthly")
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	if !sub.EndDate.Equal(end) || f.subs.writes != 0 {
		t.Errorf("Expected no change, got end %v and %d writes", sub.EndDate, f.subs.writes)
	}
}

func TestWebhookActivatesAndIsIdempotent(t *testing.T) {
	f := newBillingFixture()
	f.dir.byEmail = map[string]string{"payer@example.com": "u-payer"}
	payload := &meshulam.WebhookPayload{TransactionCode: "wh-1", PayerEmail: "payer@example.com", PaymentSum: 30}

	res, err := f.billing.HandleWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if res.UserID != "u-payer" || res.BillingCycle != models.BillingMonthly {
		t.Errorf("Expected monthly activation for u-payer, got %+v", res)
	}
	if f.subs.subs["u-payer"].Status != models.StatusActive || !f.users.users["u-payer"].IsPremium {
		t.Error("Expected active premium subscription")
	}

	subWrites, txWrites := f.subs.writes, f.txs.writes
	res, err = f.billing.HandleWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("second HandleWebhook failed: %v", err)
	}
	if !res.Duplicate {
		t.Error("Expected duplicate delivery to be flagged")
	}
	if f.subs.writes != subWrites || f.txs.writes != txWrites {
		t.Error("Expected duplicate delivery not to write")
	}
}

func TestWebhookYearlyAndUserCreation(t *testing.T) {
	f := newBillingFixture()

	res, err := f.billing.HandleWebhook(context.Background(), &meshulam.WebhookPayload{TransactionCode: "wh-2", PayerEmail: "new@example.com", PaymentSum: 288})
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if !res.UserCreated || res.UserID != "uid-new" {
		t.Errorf("Expected new user uid-new, got %+v", res)
	}
	if res.BillingCycle != models.BillingYearly {
		t.Errorf("Expected yearly from amount, got %s", res.BillingCycle)
	}

	res, err = f.billing.HandleWebhook(context.Background(), &meshulam.WebhookPayload{TransactionCode: "wh-3", PayerEmail: "new@example.com", PaymentSum: 288,
		PurchaseCustomField: map[string]string{"billingCycle": "monthly"}})
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if res.BillingCycle != models.BillingMonthly {
		t.Errorf("Expected explicit monthly cycle to win over amount, got %s", res.BillingCycle)
	}
}

func TestWebhookRequiresPayerEmail(t *testing.T) {
	f := newBillingFixture()
	_, err := f.billing.HandleWebhook(context.Background(), &meshulam.WebhookPayload{TransactionCode: "wh-4"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestWebhookFailedPayment(t *testing.T) {
	f := newBillingFixture()
	f.dir.byEmail = map[string]string{"payer@example.com": "u-payer"}

	res, err := f.billing.HandleWebhook(context.Background(), &meshulam.WebhookPayload{TransactionCode: "wh-5", PayerEmail: "payer@example.com", ErrorMessage: "card declined"})
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if !res.Failed {
		t.Error("Expected failed result")
	}
	if f.txs.txs["wh-5"].Status != models.TransactionFailed {
		t.Errorf("Expected failed transaction, got %s", f.txs.txs["wh-5"].Status)
	}
	if _, ok := f.subs.subs["u-payer"]; ok {
		t.Error("Expected no subscription for failed payment")
	}
}

func TestChangePlanRequiresLiveSubscription(t *testing.T) {
	cases := map[string]models.Subscription{
		"cancelled": {UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusCancelled,
			EndDate: time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)},
		"expired": {UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusExpired,
			EndDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		"lapsed": {UserID: "u1", Plan: "premium", BillingCycle: "monthly", Status: models.StatusActive,
			EndDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Meshulam: models.GatewayRefs{RecurringTransactionID: "r-1"}},
	}
	for name, existing := range cases {
		f := newBillingFixture()
		f.subs.subs["u1"] = existing

		_, err := f.billing.ChangePlan(context.Background(), f.identity, "premium", "yearly")
		f.billing.Wait()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: Expected ValidationError, got %v", name, err)
		}
		if f.subs.writes != 0 {
			t.Errorf("%s: Expected no subscription writes, got %d", name, f.subs.writes)
		}
		if f.users.users["u1"].IsPremium {
			t.Errorf("%s: Expected no premium flag", name)
		}
		if len(f.gateway.stopped) != 0 {
			t.Errorf("%s: Expected no gateway calls, got %v", name, f.gateway.stopped)
		}
	}
}
