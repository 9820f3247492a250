// Package wallet pays invoices through the host wallet API.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/lnbits/scrum/domain"
)

const (
	paymentsPath    = "/api/v1/payments"
	maxResponseBody = 64 << 10
)

// ErrPaymentFailed is returned when the wallet rejects or cannot settle a payment.
var ErrPaymentFailed = errors.New("wallet payment failed")

type payRequest struct {
	Out         bool              `json:"out"`
	WalletID    string            `json:"wallet_id"`
	Bolt11      string            `json:"bolt11"`
	MaxSat      int64             `json:"max_sat"`
	Description string            `json:"description"`
	Extra       map[string]string `json:"extra,omitempty"`
}

type payResponse struct {
	PaymentHash string `json:"payment_hash"`
	CheckingID  string `json:"checking_id"`
	Detail      string `json:"detail"`
}

// Client wraps http.Client with the wallet API base URL and admin token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a Client whose requests are bounded by timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Pay sends an outgoing payment and returns its hash once the wallet accepts it.
func (c *Client) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	body, err := sonic.ConfigStd.Marshal(payRequest{
		Out:         true,
		WalletID:    req.WalletID,
		Bolt11:      req.Invoice,
		MaxSat:      req.MaxSat,
		Description: req.Description,
		Extra:       req.Extra,
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+paymentsPath, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()

	var out payResponse
	decodeErr := sonic.ConfigStd.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := out.Detail
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return domain.PaymentResult{}, fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, ErrPaymentFailed)
	}
	if decodeErr != nil {
		return domain.PaymentResult{}, fmt.Errorf("decode wallet response: %w", decodeErr)
	}
	if out.PaymentHash == "" {
		return domain.PaymentResult{}, fmt.Errorf("no payment hash returned: %w", ErrPaymentFailed)
	}
	return domain.PaymentResult{PaymentHash: out.PaymentHash, CheckingID: out.CheckingID}, nil
}
