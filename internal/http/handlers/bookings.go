package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"velora.app/internal/http/middleware"
	"velora.app/internal/http/validation"
	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/catalog"
	"velora.app/internal/shared/apperr"
)

type BookingsHandler struct {
	Svc *bookings.Service
}

func NewBookingsHandler(svc *bookings.Service) *BookingsHandler {
	return &BookingsHandler{Svc: svc}
}

type bookingResponse struct {
	ID              string         `json:"id"`
	BookingNumber   string         `json:"booking_number"`
	ProviderID      string         `json:"provider_id"`
	ClientID        string         `json:"client_id"`
	Status          string         `json:"status"`
	StartsAt        time.Time      `json:"starts_at"`
	EndsAt          time.Time      `json:"ends_at"`
	DurationMinutes int            `json:"duration_minutes"`
	TotalPriceCents int64          `json:"total_price_cents"`
	PaidCents       int64          `json:"paid_cents"`
	RefundedCents   int64          `json:"refunded_cents"`
	DepositCents    int64          `json:"deposit_cents"`
	Currency        string         `json:"currency"`
	RescheduleCount int            `json:"reschedule_count"`
	Cancellable     bool           `json:"cancellable"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func toBookingResponse(b bookings.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		BookingNumber:   b.BookingNumber,
		ProviderID:      b.ProviderID,
		ClientID:        b.ClientID,
		Status:          string(b.Status),
		StartsAt:        b.StartsAt,
		EndsAt:          b.EndsAt,
		DurationMinutes: b.DurationMinutes,
		TotalPriceCents: b.TotalPriceCents,
		PaidCents:       b.PaidCents,
		RefundedCents:   b.RefundedCents,
		DepositCents:    b.DepositCents,
		Currency:        b.Currency,
		RescheduleCount: b.RescheduleCount,
		Cancellable:     b.Status.CanBeCancelled(),
		ConfirmedAt:     b.ConfirmedAt,
		CancelledAt:     b.CancelledAt,
		CompletedAt:     b.CompletedAt,
		Metadata:        b.Metadata,
	}
}

type createBookingRequest struct {
	ProviderID string    `json:"provider_id" binding:"required,uuid"`
	StartsAt   time.Time `json:"starts_at" binding:"required"`
	Note       string    `json:"note" binding:"max=500"`
	Services   []struct {
		ServiceID string `json:"service_id" binding:"required,uuid"`
		Quantity  int    `json:"quantity" binding:"min=0,max=10"`
	} `json:"services" binding:"required,min=1,dive"`
}

func (h *BookingsHandler) Create(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validation.FromBindError(err, &req)
		middleware.Fail(c, apperr.InvalidErr("Request is invalid.", fields))
		return
	}

	selections := make([]catalog.Selection, 0, len(req.Services))
	for _, s := range req.Services {
		selections = append(selections, catalog.Selection{ServiceID: s.ServiceID, Quantity: s.Quantity})
	}

	b, err := h.Svc.Create(c.Request.Context(), bookings.CreateInput{
		ProviderID: req.ProviderID,
		ClientID:   actor.UserID,
		StartsAt:   req.StartsAt,
		Selections: selections,
		ClientNote: req.Note,
	})
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingsHandler) Get(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	b, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	if actor.Role != bookings.RoleAdmin && actor.UserID != b.ClientID && actor.UserID != b.ProviderID {
		middleware.Fail(c, apperr.ForbiddenErr("You are not a party to this booking."))
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

type confirmBookingRequest struct {
	Notes     string   `json:"notes" binding:"max=500"`
	Equipment []string `json:"equipment" binding:"max=20"`
}

func (h *BookingsHandler) Confirm(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	var req confirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		fields := validation.FromBindError(err, &req)
		middleware.Fail(c, apperr.InvalidErr("Request is invalid.", fields))
		return
	}

	b, err := h.Svc.Confirm(c.Request.Context(), c.Param("id"), actor, bookings.ConfirmInput{
		Notes:     req.Notes,
		Equipment: req.Equipment,
	})
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

type cancelBookingRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

func (h *BookingsHandler) Cancel(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validation.FromBindError(err, &req)
		middleware.Fail(c, apperr.InvalidErr("Request is invalid.", fields))
		return
	}

	res, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking": toBookingResponse(res.Booking),
		"fee": gin.H{
			"amount_cents":       res.Fee.FeeCents,
			"percent":            res.Fee.Percent,
			"hours_before_start": res.Fee.HoursBeforeStart,
		},
		"refund": gin.H{
			"transaction_ids":   res.Refund.TransactionIDs,
			"amount_cents":      res.Refund.AmountCents,
			"skipped":           res.Refund.Skipped,
			"manual_settlement": res.Refund.ManualSettlement,
		},
	})
}

func (h *BookingsHandler) Complete(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	b, err := h.Svc.Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

type rescheduleBookingRequest struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
}

func (h *BookingsHandler) Reschedule(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Authentication required."))
		return
	}

	var req rescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validation.FromBindError(err, &req)
		middleware.Fail(c, apperr.InvalidErr("Request is invalid.", fields))
		return
	}

	b, err := h.Svc.Reschedule(c.Request.Context(), c.Param("id"), actor, req.StartsAt)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}
