package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/middleware"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/service"
)

// RefreshCookie is the cookie carrying the refresh token. It is never
// readable from scripts and is only sent to the auth endpoints.
const RefreshCookie = "refresh_token"

const refreshCookiePath = "/v1/auth"

// Sessions is the token lifecycle used by AuthHandler.
type Sessions interface {
	Login(ctx context.Context, email, password string) (service.TokenPair, model.User, error)
	Refresh(ctx context.Context, refreshToken string) (service.TokenPair, error)
	Logout(ctx context.Context, id model.Identity, refreshToken string) error
}

// Accounts is the registration surface used by AuthHandler.
type Accounts interface {
	Register(ctx context.Context, email, password string) (service.RegisterResult, error)
	Activate(ctx context.Context, userID uint64, token string) (service.ActivateResult, error)
	Profile(ctx context.Context, id model.Identity) (model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions     Sessions
	Accounts     Accounts
	CookieSecure bool
}

func NewAuthHandler(s Sessions, a Accounts, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Sessions: s, Accounts: a, CookieSecure: cookieSecure}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User   model.UserRef `json:"user"`
	Access tokenPart     `json:"access"`
}

// Register creates an inactive account and sends the activation link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := h.Accounts.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":                    res.UserID,
		"activation_email_sent": res.ActivationEmailSent,
	})
}

// Activate consumes the link from the activation email.
func (h *AuthHandler) Activate(c echo.Context) error {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 64)
	if err != nil || uid == 0 {
		return writeError(c, service.ErrInvalidActivationToken)
	}
	res, err := h.Accounts.Activate(c.Request().Context(), uid, c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}
	msg := "account activated"
	if res.AlreadyActive {
		msg = "account already active"
	}
	return c.JSON(http.StatusOK, echo.Map{"activated": res.Activated, "message": msg})
}

// Login returns the access token in the body and sets the refresh cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	pair, u, err := h.Sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	h.setRefreshCookie(c, pair)
	return c.JSON(http.StatusOK, authResp{
		User:   model.UserRef{ID: u.ID, Email: u.Email},
		Access: tokenPart{Token: pair.AccessToken, Expires: pair.AccessExpires},
	})
}

// Refresh rotates the refresh cookie and returns a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		return writeError(c, service.ErrUnauthenticated)
	}
	pair, err := h.Sessions.Refresh(c.Request().Context(), ck.Value)
	if err != nil {
		h.clearRefreshCookie(c)
		return writeError(c, err)
	}
	h.setRefreshCookie(c, pair)
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: pair.AccessToken, Expires: pair.AccessExpires},
	})
}

// Logout revokes the bearer token and the refresh cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthenticated)
	}
	var refresh string
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		refresh = ck.Value
	}
	if err := h.Sessions.Logout(c.Request().Context(), id, refresh); err != nil {
		return writeError(c, err)
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, service.ErrUnauthenticated)
	}
	u, err := h.Accounts.Profile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, model.UserRef{ID: u.ID, Email: u.Email})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, pair service.TokenPair) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpires,
		MaxAge:   int(time.Until(pair.RefreshExpires).Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
