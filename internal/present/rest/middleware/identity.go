package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prismsocial/prism-server/internal/domain"
)

var tracer = otel.Tracer("identity")

// IdentityMiddleware lifts the requester ID set by the upstream auth
// proxy into the request context. Session issuance itself lives
// outside this service.
type IdentityMiddleware struct{}

func NewIdentityMiddleware() *IdentityMiddleware {
	return &IdentityMiddleware{}
}

func (m *IdentityMiddleware) IdentifyRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Middleware.IdentifyRequester")
		defer span.End()

		requesterID := c.Request().Header.Get(domain.RequesterIdHeader)
		if requesterID != "" {
			ctx = context.WithValue(ctx, domain.RequesterIdCtxKey, requesterID)
			span.SetAttributes(attribute.String("RequesterId", requesterID))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequesterID extracts the requester set by IdentifyRequester, empty
// when anonymous.
func RequesterID(ctx context.Context) string {
	id, _ := ctx.Value(domain.RequesterIdCtxKey).(string)
	return id
}
