package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// Config carries the MoMo partner credentials and retry tuning.
type Config struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	ReturnURL   string
	NotifyURL   string
	MaxRetries  int
	BaseDelay   time.Duration
}

// Client talks to the MoMo wallet gateway. Every request and callback is
// signed with HMAC-SHA256 over a canonical parameter string whose keys are in
// alphabetical order, per the partner API contract.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient constructs a gateway client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// CreateResponse is the gateway's answer to a payment creation.
type CreateResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	PayURL      string `json:"payUrl"`
	Deeplink    string `json:"deeplink"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
}

// QueryResponse is the gateway's answer to a transaction status query.
type QueryResponse struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	TransID    int64  `json:"transId"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
}

// IPN is the gateway's asynchronous payment notification.
type IPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// CreatePayment registers a payment attempt at the gateway and returns the
// redirect and deeplink URLs for the client.
func (c *Client) CreatePayment(ctx context.Context, orderID, requestID string, amount int64, orderInfo, extraData string) (*CreateResponse, error) {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		c.cfg.AccessKey, amount, extraData, c.cfg.NotifyURL, orderID, orderInfo,
		c.cfg.PartnerCode, c.cfg.ReturnURL, requestID, "captureWallet",
	)
	payload := map[string]any{
		"partnerCode": c.cfg.PartnerCode,
		"accessKey":   c.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      amount,
		"orderId":     orderID,
		"orderInfo":   orderInfo,
		"redirectUrl": c.cfg.ReturnURL,
		"ipnUrl":      c.cfg.NotifyURL,
		"extraData":   extraData,
		"requestType": "captureWallet",
		"lang":        "vi",
		"signature":   c.sign(raw),
	}

	var resp CreateResponse
	if err := c.post(ctx, "/v2/gateway/api/create", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ResultCode != 0 {
		return nil, fmt.Errorf("gateway: create payment %s: %s (code %d): %w",
			orderID, resp.Message, resp.ResultCode, ErrGatewayRejected)
	}
	return &resp, nil
}

// QueryTransaction asks the gateway for the authoritative state of an order.
func (c *Client) QueryTransaction(ctx context.Context, orderID, requestID string) (*QueryResponse, error) {
	raw := fmt.Sprintf(
		"accessKey=%s&orderId=%s&partnerCode=%s&requestId=%s",
		c.cfg.AccessKey, orderID, c.cfg.PartnerCode, requestID,
	)
	payload := map[string]any{
		"partnerCode": c.cfg.PartnerCode,
		"requestId":   requestID,
		"orderId":     orderID,
		"lang":        "vi",
		"signature":   c.sign(raw),
	}

	var resp QueryResponse
	if err := c.post(ctx, "/v2/gateway/api/query", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyIPN recomputes the callback signature and compares it in constant
// time. Callers must not mutate any state when this fails.
func (c *Client) VerifyIPN(ipn IPN) error {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		c.cfg.AccessKey, ipn.Amount, ipn.ExtraData, ipn.Message, ipn.OrderID, ipn.OrderInfo,
		ipn.OrderType, ipn.PartnerCode, ipn.PayType, ipn.RequestID, ipn.ResponseTime,
		ipn.ResultCode, ipn.TransID,
	)
	if !hmac.Equal([]byte(c.sign(raw)), []byte(ipn.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (c *Client) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// post sends one JSON request with bounded retries. Only transport failures
// and 5xx answers are retried; a decoded gateway answer is always returned to
// the caller, even when it reports an error code.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("gateway: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("gateway request failed", "path", path, "attempt", attempt+1, "error", err)
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("gateway answered %d", resp.StatusCode)
			c.logger.Warn("gateway server error", "path", path, "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("gateway: decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("gateway: %s failed after %d attempts: %v: %w", path, c.cfg.MaxRetries+1, lastErr, ErrGatewayUnavailable)
}
