package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"velora.app/internal/http/middleware"
	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/shared/apperr"
)

type LedgerHandler struct {
	Svc *ledger.Service
}

func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{Svc: svc}
}

// Balance returns the caller's own balance; admins may ask for any
// user via the user_id query parameter.
func (h *LedgerHandler) Balance(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	userID := actor.UserID
	if q := c.Query("user_id"); q != "" && actor.Role == bookings.RoleAdmin {
		userID = q
	}
	currency := c.DefaultQuery("currency", "EUR")

	balance, err := h.Svc.Balance(c.Request.Context(), userID, currency)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"currency":      currency,
		"balance_cents": balance,
	})
}

func (h *LedgerHandler) Transactions(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	userID := actor.UserID
	if q := c.Query("user_id"); q != "" && actor.Role == bookings.RoleAdmin {
		userID = q
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	out := make([]transactionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransactionResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"transactions": out,
	})
}

type transactionResponse struct {
	ID                string     `json:"id"`
	TransactionNumber string     `json:"transaction_number"`
	BookingID         *string    `json:"booking_id,omitempty"`
	Type              string     `json:"type"`
	Direction         string     `json:"direction"`
	Status            string     `json:"status"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	BalanceAfterCents *int64     `json:"balance_after_cents,omitempty"`
	Description       string     `json:"description,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:                t.ID,
		TransactionNumber: t.TransactionNumber,
		BookingID:         t.BookingID,
		Type:              string(t.Type),
		Direction:         string(t.Direction),
		Status:            string(t.Status),
		AmountCents:       t.AmountCents,
		Currency:          t.Currency,
		BalanceAfterCents: t.BalanceAfterCents,
		Description:       t.Description,
		ProcessedAt:       t.ProcessedAt,
		CreatedAt:         t.CreatedAt,
	}
}

func (h *LedgerHandler) Statistics(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	userID := actor.UserID
	if q := c.Query("user_id"); q != "" && actor.Role == bookings.RoleAdmin {
		userID = q
	}

	to := time.Now()
	from := to.AddDate(0, -1, 0)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.Fail(c, apperr.InvalidErr("Invalid from timestamp.", map[string]string{"from": "Must be RFC3339."}))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.Fail(c, apperr.InvalidErr("Invalid to timestamp.", map[string]string{"to": "Must be RFC3339."}))
			return
		}
		to = t
	}

	stats, err := h.Svc.Statistics(c.Request.Context(), userID, from, to)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"from":            from,
		"to":              to,
		"total_count":     stats.TotalCount,
		"count_by_type":   stats.CountByType,
		"count_by_status": stats.CountByStatus,
		"incoming_cents":  stats.IncomingCents,
		"outgoing_cents":  stats.OutgoingCents,
		"success_rate":    stats.SuccessRate,
	})
}
