package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(apiKey, webhookSecret string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Refund(_ context.Context, req GatewayRefundRequest) (GatewayRefundResponse, error) {
	if req.PaymentRef == "" {
		return GatewayRefundResponse{}, errors.New("missing gateway payment reference")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentRef),
		Amount:        stripe.Int64(req.AmountCents),
		Metadata: map[string]string{
			"payment_id": req.PaymentID,
			"reason":     req.Reason,
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	r, err := refund.New(params)
	if err != nil {
		return GatewayRefundResponse{}, err
	}
	return GatewayRefundResponse{
		GatewayTransactionID: r.ID,
		Succeeded:            r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending,
	}, nil
}

func (g *StripeGateway) VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(body, headers.Get("Stripe-Signature"), g.webhookSecret)
	if err != nil {
		return WebhookEvent{}, err
	}

	out := WebhookEvent{EventID: ev.ID}
	payload := string(ev.Data.Raw)

	switch ev.Type {
	case "refund.updated", "charge.refund.updated":
		out.RefundRef = gjson.Get(payload, "id").String()
		out.AmountCents = gjson.Get(payload, "amount").Int()
		out.Currency = gjson.Get(payload, "currency").String()
		if gjson.Get(payload, "status").String() == "failed" {
			out.Type = "refund.failed"
		} else {
			out.Type = "refund.succeeded"
		}
	default:
		out.Type = string(ev.Type)
	}
	return out, nil
}
