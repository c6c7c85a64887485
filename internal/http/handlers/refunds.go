package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"velora.app/internal/http/middleware"
	"velora.app/internal/http/validation"
	"velora.app/internal/modules/payments"
	"velora.app/internal/shared/apperr"
)

type RefundsHandler struct {
	Engine *payments.RefundEngine
}

func NewRefundsHandler(engine *payments.RefundEngine) *RefundsHandler {
	return &RefundsHandler{Engine: engine}
}

type refundRequest struct {
	PaymentID   string `json:"payment_id" binding:"required,uuid"`
	AmountCents int64  `json:"amount_cents" binding:"min=0"` // 0 => full remaining
	Reason      string `json:"reason" binding:"required,min=3,max=500"`
	Forced      bool   `json:"forced"`
}

func refundResponse(res payments.Result) gin.H {
	return gin.H{
		"transaction_id":     res.Transaction.ID,
		"transaction_number": res.Transaction.TransactionNumber,
		"amount_cents":       res.Transaction.AmountCents,
		"payment_status":     string(res.Payment.Status),
		"refunded_cents":     res.Payment.RefundedCents,
		"reason_category":    string(res.ReasonCategory),
		"priority":           string(res.Priority),
		"manual_settlement":  res.ManualSettlement,
	}
}

// Create is the admin refund surface: partial, full or forced
// depending on the request body.
func (h *RefundsHandler) Create(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validation.FromBindError(err, &req)
		middleware.Fail(c, apperr.InvalidErr("Request is invalid.", fields))
		return
	}

	var res payments.Result
	var err error
	switch {
	case req.Forced:
		res, err = h.Engine.RefundForce(c.Request.Context(), req.PaymentID, req.AmountCents, req.Reason, actor.UserID)
	case req.AmountCents > 0:
		res, err = h.Engine.RefundPartial(c.Request.Context(), req.PaymentID, req.AmountCents, req.Reason, actor.UserID)
	default:
		res, err = h.Engine.RefundFull(c.Request.Context(), req.PaymentID, req.Reason, actor.UserID)
	}
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusCreated, refundResponse(res))
}

// GatewayWebhook finalizes async gateway refunds.
func (h *RefundsHandler) GatewayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("Unreadable payload.", nil))
		return
	}
	if err := h.Engine.HandleRefundWebhook(c.Request.Context(), c.Request.Header, body); err != nil {
		middleware.Fail(c, apperr.ExternalErr("Webhook rejected.", err))
		return
	}
	c.Status(http.StatusOK)
}
