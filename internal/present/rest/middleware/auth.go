package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/civicworks/civicd/internal/domain"
	"github.com/civicworks/civicd/internal/present/rest/presenter"
	"github.com/civicworks/civicd/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	auth *service.AuthService
}

func NewAuthMiddleware(auth *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// IdentifyIdentity resolves the Authorization header into a principal
// stored on the request context. A request with no header passes
// through anonymously, but a header that fails verification is
// terminal: the request is rejected here rather than demoted to
// anonymous.
func (s *AuthMiddleware) IdentifyIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyIdentity")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")
		if authHeader != "" {
			principal, err := s.auth.Verify(ctx, authHeader)
			if err != nil {
				span.RecordError(err)
				return presenter.Error(c, err)
			}

			ctx = context.WithValue(ctx, domain.PrincipalCtxKey, principal)
			span.SetAttributes(attribute.String("PrincipalEmail", principal.Email))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// Require gates a route on an authenticated principal holding one of
// the given roles. With no roles listed any authenticated principal
// passes. Roles have no hierarchy: an admin does not implicitly pass a
// worker-only gate.
func (s *AuthMiddleware) Require(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := PrincipalFrom(c.Request().Context())
			if !ok {
				return presenter.Error(c, domain.ErrCredentialMissing)
			}

			if len(roles) == 0 {
				return next(c)
			}
			for _, role := range roles {
				if principal.Role == role {
					return next(c)
				}
			}
			return presenter.Error(c, domain.ErrForbidden)
		}
	}
}

// PrincipalFrom extracts the authenticated principal, if any, from a
// request context.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(domain.PrincipalCtxKey).(domain.Principal)
	return principal, ok
}
