package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/omniface/omniface-go/internal/logger"
)

// bearerTokenParts is the expected number of parts when splitting Authorization header.
const bearerTokenParts = 2

// CtxKeyTenantID holds the authenticated tenant id in echo.Context.
const CtxKeyTenantID = "auth:tenantID"

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", bearerTokenParts)
	if len(parts) != bearerTokenParts || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware rejects requests without a valid bearer token and stores the
// tenant id for TenantID.
func (s *TokenService) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, err := s.Validate(BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)))
			if err != nil {
				GetLogger().Debug("rejected request",
					logger.String("path", c.Request().URL.Path),
					logger.String("ip", c.RealIP()),
					logger.Error(err))
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
			}
			c.Set(CtxKeyTenantID, tenantID)
			return next(c)
		}
	}
}

// TenantID returns the tenant stored by Middleware
func TenantID(c echo.Context) (uint, bool) {
	id, ok := c.Get(CtxKeyTenantID).(uint)
	return id, ok && id != 0
}
