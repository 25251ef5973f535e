package middleware

// identity.go holds the context helpers shared by the middleware and the
// handlers. Authenticate stores the caller under identityKey.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/model"
)

const identityKey = "identity"

// SetIdentity attaches the authenticated caller to the request.
func SetIdentity(c echo.Context, id model.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller set by Authenticate.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok
}

// userID returns the caller's id for rate-limit keys, or "anon".
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
