package domain

import "context"

// PaymentTag marks payments and invoices that belong to this extension.
const PaymentTag = "scrum"

// InvoiceResolver turns an assignee's Lightning address into a payable invoice.
type InvoiceResolver interface {
	Resolve(ctx context.Context, assignee string, amountSats int64) (string, error)
}

// PaymentRequest is an outgoing payment against one of the owner's wallets.
type PaymentRequest struct {
	WalletID    string
	Invoice     string
	MaxSat      int64
	Description string
	Extra       map[string]string
}

// PaymentResult identifies a settled outgoing payment.
type PaymentResult struct {
	PaymentHash string
	CheckingID  string
}

// Payer executes outgoing payments through the host wallet.
type Payer interface {
	Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}
