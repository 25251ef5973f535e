package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/service"
)

// writeError maps a service error to its status code and JSON body.
// Anything unrecognised is logged and reported as a 500 without detail.
func writeError(c echo.Context, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrAccountInactive):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is not active"})
	case errors.Is(err, service.ErrInvalidActivationToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired activation token"})
	case errors.Is(err, service.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrEmailInUse):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already in use"})
	}
	logger.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(field, msg string) error {
	return &service.ValidationError{Field: field, Message: msg}
}
