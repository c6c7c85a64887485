package payments

import (
	"context"
	"net/http"
)

type GatewayRefundRequest struct {
	PaymentID      string
	PaymentRef     string // gateway's reference for the original charge
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

type GatewayRefundResponse struct {
	GatewayTransactionID string
	Succeeded            bool
}

type WebhookEvent struct {
	EventID     string
	Type        string // refund.succeeded|refund.failed
	RefundRef   string
	AmountCents int64
	Currency    string
}

// Gateway is the payment-provider adapter. A refund call failing here
// never fails the domain operation; the engine flags the refund for
// manual settlement instead.
type Gateway interface {
	Name() string
	Refund(ctx context.Context, req GatewayRefundRequest) (GatewayRefundResponse, error)
	VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error)
}
