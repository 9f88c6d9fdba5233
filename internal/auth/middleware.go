package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bull/robotics-tutor/internal/apperr"
)

// UserIDKey is the echo context key holding the authenticated user id.
const UserIDKey = "user_id"

// Middleware rejects requests without a valid bearer token and stores the
// token subject under UserIDKey.
func Middleware(tokens *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if raw == "" {
				return apperr.Authentication("Missing bearer token")
			}
			userID, err := tokens.Verify(raw)
			if err != nil {
				return apperr.Authentication("Invalid or expired token")
			}
			c.Set(UserIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the id set by Middleware, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
