package meshulam

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// Gateway operation names, also used as metric labels
const (
	OpCreatePayment  = "create_payment"
	OpTransaction    = "get_transaction"
	OpStopRecurring  = "stop_recurring"
	SignatureHeader  = "X-Signature"
	WebhookSigHeader = "X-Meshulam-Signature"
)

// Payment types understood by the payment page
const (
	PaymentRegular   = "regular"
	PaymentRecurring = "recurring"
)

const slowGatewayCallMs = 3000

// Transaction statuses reported by getTransactionInfo
const (
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusPending   = "pending"
)

// PaymentRequest is the createPaymentProcess request body
type PaymentRequest struct {
	PageCode     string            `json:"pageCode"`
	UserID       string            `json:"userId"`
	Email        string            `json:"email"`
	FirstName    string            `json:"firstName,omitempty"`
	LastName     string            `json:"lastName,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Sum          float64           `json:"sum"`
	Description  string            `json:"description"`
	PaymentType  string            `json:"paymentType"`
	SuccessURL   string            `json:"successUrl"`
	CancelURL    string            `json:"cancelUrl"`
	MaxPayments  int               `json:"maxPayments,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// ResponseData is the data object of every gateway response
type ResponseData struct {
	URL                    string  `json:"url,omitempty"`
	TransactionID          string  `json:"transactionId,omitempty"`
	CustomerID             string  `json:"customerId,omitempty"`
	RecurringTransactionID string  `json:"recurringTransactionId,omitempty"`
	Status                 string  `json:"status,omitempty"`
	Sum                    float64 `json:"sum,omitempty"`
	Message                string  `json:"message,omitempty"`
}

// Response is the gateway response envelope; Status is 1 on success
type Response struct {
	Status int          `json:"status"`
	Err    string       `json:"err,omitempty"`
	Data   ResponseData `json:"data"`
}

// OK reports whether the gateway accepted the request
func (r *Response) OK() bool {
	return r.Status == 1
}

// Client talks to the Meshulam light server API. Calls are bounded by the
// configured timeout and never retried.
type Client struct {
	baseURL    string
	pageCode   string
	apiKey     string
	apiSecret  string
	successURL string
	cancelURL  string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a client from config
func NewClient(cfg config.MeshulamConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageCode:   cfg.PageCode,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetLogger("meshulam"),
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Sign returns the hex HMAC-SHA256 of body keyed with the API secret
func (c *Client) Sign(body []byte) string {
	return Sign(c.apiSecret, body)
}

// Sign returns the hex HMAC-SHA256 of body keyed with secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// CreatePaymentProcess opens a hosted payment page. PageCode, SuccessURL and
// CancelURL default to the configured values when empty.
func (c *Client) CreatePaymentProcess(ctx context.Context, req PaymentRequest) (*Response, error) {
	if req.PageCode == "" {
		req.PageCode = c.pageCode
	}
	if req.SuccessURL == "" {
		req.SuccessURL = c.successURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.cancelURL
	}
	return c.post(ctx, "/createPaymentProcess", req)
}

// GetTransactionInfo returns the gateway's view of a transaction
func (c *Client) GetTransactionInfo(ctx context.Context, transactionID string) (*Response, error) {
	return c.post(ctx, "/getTransactionInfo", map[string]string{
		"pageCode":      c.pageCode,
		"transactionId": transactionID,
	})
}

// StopRecurringPayment cancels a recurring authorization
func (c *Client) StopRecurringPayment(ctx context.Context, recurringTransactionID string) (*Response, error) {
	return c.post(ctx, "/stopRecurringPayment", map[string]string{
		"pageCode":               c.pageCode,
		"recurringTransactionId": recurringTransactionID,
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Response, error) {
	op := c.log.StartOperation("gateway "+path, slowGatewayCallMs)
	out, err := c.send(ctx, path, payload)
	if err != nil {
		op.CompleteWithError(ctx, err)
		return nil, err
	}
	op.Complete(ctx)
	return out, nil
}

func (c *Client) send(ctx context.Context, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set(SignatureHeader, c.Sign(body))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.DebugWithFieldsCtx(ctx, "Gateway call completed", map[string]interface{}{
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// WebhookPayload is a payment notification posted by the gateway
type WebhookPayload struct {
	WebhookKey          string            `json:"webhookKey"`
	TransactionCode     string            `json:"transactionCode"`
	TransactionType     string            `json:"transactionType"`
	PaymentSum          float64           `json:"paymentSum"`
	PaymentType         string            `json:"paymentType"`
	PaymentDate         string            `json:"paymentDate"`
	PaymentDesc         string            `json:"paymentDesc"`
	FullName            string            `json:"fullName"`
	PayerPhone          string            `json:"payerPhone"`
	PayerEmail          string            `json:"payerEmail"`
	PaymentSource       string            `json:"paymentSource"`
	DirectDebitID       string            `json:"directDebitId"`
	ErrorMessage        string            `json:"error_message"`
	PurchaseCustomField map[string]string `json:"purchaseCustomField"`
}

// ErrEmptyWebhook is returned for a body that is not a JSON object
var ErrEmptyWebhook = errors.New("empty webhook payload")

// ParseWebhook decodes a webhook body
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyWebhook
	}
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return &p, nil
}

// CustomField returns a purchase custom field by name
func (p *WebhookPayload) CustomField(name string) string {
	if p.PurchaseCustomField == nil {
		return ""
	}
	return p.PurchaseCustomField[name]
}
