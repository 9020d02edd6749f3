package middleware

import (
	"strings"

	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/delivery/http/response"
	"flagfeed/internal/domain/service"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware authenticates requests against the identity provider.
type AuthMiddleware struct {
	identity service.IdentityProvider
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(identity service.IdentityProvider) *AuthMiddleware {
	return &AuthMiddleware{identity: identity}
}

// Authenticate validates the Bearer session token and stores the viewer
// uid on the context for handlers to use.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "AUTH_HEADER_MISSING", "Authorization header is missing")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return response.Unauthorized(c, "AUTH_HEADER_INVALID", "Invalid token format, must be Bearer token")
		}

		uid, err := m.identity.VerifyToken(c.Request().Context(), tokenString)
		if err != nil {
			return response.Unauthorized(c, "SESSION_INVALID", "Invalid or expired session token")
		}

		deliverycontext.SetViewerID(c, uid)

		return next(c)
	}
}
