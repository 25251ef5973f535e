package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/service"
	"github.com/iliyamo/project-tracker/internal/utils"
)

// Authenticator resolves a bearer access token to a caller.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Identity, error)
}

// Authenticate returns an Echo middleware that validates the Bearer access
// token and stores the caller's identity in the context. Expired tokens
// get a WWW-Authenticate hint so clients know a refresh may help.
func Authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer`)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			id, err := auth.Authenticate(c.Request().Context(), strings.TrimSpace(raw))
			if err != nil {
				if errors.Is(err, utils.ErrExpiredToken) {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token", error_description="token expired"`)
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				if errors.Is(err, service.ErrUnauthenticated) {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				logger.Error().Err(err).Str("path", c.Path()).Msg("authentication failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}
