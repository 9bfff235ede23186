// Package payment talks to the payment gateway: remote order creation and
// checkout signature verification.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
)

const (
	DefaultBaseURL = "https://api.razorpay.com/v1"
	DefaultTimeout = 10 * time.Second

	// gateway limit on the receipt field
	maxReceiptLen = 40
	// cap on error bodies kept for diagnostics
	maxErrorBody = 4 << 10
)

// Gateway creates remote orders and exposes the public key the checkout
// widget needs.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	KeyID() string
}

// CreateOrderRequest is the body sent to the gateway's order endpoint.
type CreateOrderRequest struct {
	Amount         int64             `json:"amount"` // minor units
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// GatewayOrder is the subset of the gateway's order response we use.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Receipt builds the gateway receipt for a local order id.
func Receipt(localOrderID string) string {
	r := "rcpt_" + localOrderID
	if len(r) > maxReceiptLen {
		r = r[:maxReceiptLen]
	}
	return r
}

// RazorpayClient is a Gateway backed by the Razorpay orders API.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpayClient returns a client with an explicit request timeout.
// timeout <= 0 selects DefaultTimeout.
func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RazorpayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RazorpayClient) KeyID() string { return c.keyID }

// CreateOrder creates a remote order. Every failure mode (transport error,
// timeout, non-2xx, malformed body) is reported as an upstream error.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Internal("marshal gateway order", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("build gateway request", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := "gateway request failed"
		if isTimeout(err) {
			msg = "gateway request timed out"
		}
		log.Printf("[gateway] %s: %v", msg, err)
		return nil, apperr.Upstream(msg, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Upstream("read gateway response", "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := string(raw)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		log.Printf("[gateway] order create failed status=%d body=%s", resp.StatusCode, detail)
		return nil, apperr.Upstream(fmt.Sprintf("gateway returned %d", resp.StatusCode), detail, nil)
	}

	var out GatewayOrder
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Upstream("decode gateway response", string(raw), err)
	}
	if out.ID == "" {
		return nil, apperr.Upstream("gateway response missing id", string(raw), nil)
	}
	return &out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
