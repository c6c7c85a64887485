package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"velora.app/internal/http/handlers"
	"velora.app/internal/http/middleware"
)

type RouterDeps struct {
	Log       *slog.Logger
	JWTSecret []byte

	Bookings *handlers.BookingsHandler
	Refunds  *handlers.RefundsHandler
	Ledger   *handlers.LedgerHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	// ErrorHandler sits outside Recovery so a recovered panic still
	// renders the JSON error envelope.
	r.Use(
		middleware.RequestID(),
		middleware.Logger(d.Log),
		middleware.ErrorHandler(d.Log),
		middleware.Recovery(d.Log),
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")

	// Gateway callbacks authenticate by signature, not by bearer token.
	api.POST("/webhooks/gateway", d.Refunds.GatewayWebhook)

	authed := api.Group("", middleware.RequireAuth(d.JWTSecret))
	{
		authed.POST("/bookings", d.Bookings.Create)
		authed.GET("/bookings/:id", d.Bookings.Get)
		authed.POST("/bookings/:id/confirm", d.Bookings.Confirm)
		authed.POST("/bookings/:id/cancel", d.Bookings.Cancel)
		authed.POST("/bookings/:id/complete", d.Bookings.Complete)
		authed.POST("/bookings/:id/reschedule", d.Bookings.Reschedule)

		authed.GET("/ledger/balance", d.Ledger.Balance)
		authed.GET("/ledger/transactions", d.Ledger.Transactions)
		authed.GET("/ledger/statistics", d.Ledger.Statistics)

		admin := authed.Group("", middleware.RequireAdmin())
		{
			admin.POST("/refunds", d.Refunds.Create)
		}
	}

	return r
}
