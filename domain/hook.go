package domain

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Payment is an incoming payment notification from the host invoice listener.
type Payment struct {
	PaymentHash string         `json:"payment_hash"`
	WalletID    string         `json:"wallet_id"`
	Amount      int64          `json:"amount"`
	Memo        string         `json:"memo,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Tag returns the extension tag the payment was created with.
func (p Payment) Tag() string {
	tag, _ := p.Extra["tag"].(string)
	return tag
}

// PaymentHook reacts to payments received for this extension.
type PaymentHook interface {
	PaymentReceived(ctx context.Context, p Payment) error
}

// NoopPaymentHook is the placeholder reconciliation hook.
type NoopPaymentHook struct {
	Logger *log.Logger
}

func (h NoopPaymentHook) PaymentReceived(_ context.Context, p Payment) error {
	if h.Logger != nil {
		h.Logger.WithField("payment_hash", p.PaymentHash).Info("payment receive logic is disabled")
	}
	return nil
}
