package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"velora.app/internal/modules/bookings"
	"velora.app/internal/shared/apperr"
)

const CtxKeyActor = "actor"

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAuth parses the bearer token and stores the resolved actor on
// the context. Role branching downstream works off this single value.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			Fail(c, apperr.UnauthorizedErr("Authentication required."))
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			Fail(c, apperr.UnauthorizedErr("Invalid or expired token."))
			return
		}

		role := bookings.ActorRole(claims.Role)
		switch role {
		case bookings.RoleClient, bookings.RoleProvider, bookings.RoleAdmin:
		default:
			Fail(c, apperr.UnauthorizedErr("Invalid or expired token."))
			return
		}

		c.Set(CtxKeyActor, bookings.Actor{UserID: claims.Subject, Role: role})
		c.Next()
	}
}

func GetActor(c *gin.Context) (bookings.Actor, bool) {
	v, ok := c.Get(CtxKeyActor)
	if !ok {
		return bookings.Actor{}, false
	}
	actor, ok := v.(bookings.Actor)
	return actor, ok
}

// RequireAdmin gates the admin surface (forced refunds, ledger
// statistics for arbitrary users).
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			Fail(c, apperr.UnauthorizedErr("Authentication required."))
			return
		}
		if actor.Role != bookings.RoleAdmin {
			Fail(c, apperr.ForbiddenErr("Admin access required."))
			return
		}
		c.Next()
	}
}
