package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/metrics"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
	"github.com/iliyamo/project-tracker/internal/utils"
)

// Revocations is the token revocation store.
type Revocations interface {
	// Blacklist records token for ttl, overwriting any existing entry.
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	// Consume records token for ttl only if it is not already recorded
	// and reports whether this call recorded it.
	Consume(ctx context.Context, token string, ttl time.Duration) (bool, error)
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// TokenPair is the result of a login or a refresh. The refresh token is
// meant for the HTTP-only cookie, never the response body.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// SessionManager issues, rotates and revokes access/refresh token pairs
// and authenticates bearer tokens. Only revoked tokens are stored.
type SessionManager struct {
	users      repository.UserStore
	codec      *utils.TokenCodec
	revoked    Revocations
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionManager(users repository.UserStore, codec *utils.TokenCodec, revoked Revocations, accessTTL, refreshTTL time.Duration) *SessionManager {
	return &SessionManager{
		users:      users,
		codec:      codec,
		revoked:    revoked,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func unauthenticated(reason string, cause error) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, cause)
	}
	return fmt.Errorf("%w: %s", ErrUnauthenticated, reason)
}

// Login checks credentials and issues a fresh pair. An inactive account
// is reported only after the password matched.
func (s *SessionManager) Login(ctx context.Context, email, password string) (TokenPair, model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.BurnPasswordCheck(password)
			metrics.AuthFailures.WithLabelValues("credentials").Inc()
			return TokenPair{}, model.User{}, ErrInvalidCredentials
		}
		return TokenPair{}, model.User{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		metrics.AuthFailures.WithLabelValues("credentials").Inc()
		return TokenPair{}, model.User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		metrics.AuthFailures.WithLabelValues("inactive").Inc()
		return TokenPair{}, model.User{}, ErrAccountInactive
	}
	pair, err := s.issue(u.ID)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	return pair, u, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// is revoked for the rest of its lifetime before the new pair is issued,
// so each refresh token works exactly once.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	cl, err := s.decode(refreshToken, utils.KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.users.GetByID(ctx, cl.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, unauthenticated("unknown_user", nil)
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	fresh, err := s.revoked.Consume(ctx, refreshToken, cl.Remaining(s.codec.Now()))
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !fresh {
		return TokenPair{}, unauthenticated("revoked", nil)
	}
	metrics.TokensRevoked.WithLabelValues(string(utils.KindRefresh)).Inc()
	return s.issue(cl.UserID)
}

// Logout revokes the caller's access token and, when given, the refresh
// token from the cookie. Each is blacklisted for its kind's full
// configured lifetime. A refresh token that does not decode, or belongs
// to another user, is ignored.
func (s *SessionManager) Logout(ctx context.Context, id model.Identity, refreshToken string) error {
	if err := s.revoked.Blacklist(ctx, id.AccessToken, s.accessTTL); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	metrics.TokensRevoked.WithLabelValues(string(utils.KindAccess)).Inc()
	if refreshToken == "" {
		return nil
	}
	cl, err := s.codec.Decode(refreshToken)
	switch {
	case errors.Is(err, utils.ErrExpiredToken):
		// nothing left to protect; the TTL store would drop it anyway
	case err != nil:
		logger.Warn().Uint64("user_id", id.UserID).Msg("logout: ignoring malformed refresh token")
		return nil
	case cl.Kind != utils.KindRefresh || cl.UserID != id.UserID:
		logger.Warn().Uint64("user_id", id.UserID).Msg("logout: ignoring foreign refresh token")
		return nil
	}
	if err := s.revoked.Blacklist(ctx, refreshToken, s.refreshTTL); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	metrics.TokensRevoked.WithLabelValues(string(utils.KindRefresh)).Inc()
	return nil
}

// Authenticate resolves a bearer access token to the caller's identity.
// Every failure, including a token whose user no longer exists, is
// ErrUnauthenticated; expiry additionally matches utils.ErrExpiredToken.
func (s *SessionManager) Authenticate(ctx context.Context, accessToken string) (model.Identity, error) {
	cl, err := s.decode(accessToken, utils.KindAccess)
	if err != nil {
		return model.Identity{}, err
	}
	revoked, err := s.revoked.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return model.Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return model.Identity{}, unauthenticated("revoked", nil)
	}
	u, err := s.users.GetByID(ctx, cl.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Identity{}, unauthenticated("unknown_user", nil)
		}
		return model.Identity{}, fmt.Errorf("load user: %w", err)
	}
	return model.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		IsSuperuser: u.IsSuperuser,
		AccessToken: accessToken,
	}, nil
}

func (s *SessionManager) decode(raw string, kind utils.TokenKind) (utils.Claims, error) {
	if raw == "" {
		return utils.Claims{}, unauthenticated("missing", nil)
	}
	cl, err := s.codec.Decode(raw)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return utils.Claims{}, unauthenticated("expired", err)
		}
		return utils.Claims{}, unauthenticated("malformed", err)
	}
	if cl.Kind != kind {
		return utils.Claims{}, unauthenticated("wrong_kind", nil)
	}
	return cl, nil
}

func (s *SessionManager) issue(userID uint64) (TokenPair, error) {
	now := s.codec.Now().UTC()
	access, err := s.codec.Encode(userID, s.accessTTL, utils.KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Encode(userID, s.refreshTTL, utils.KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:    access,
		AccessExpires:  now.Add(s.accessTTL).Truncate(time.Second),
		RefreshToken:   refresh,
		RefreshExpires: now.Add(s.refreshTTL).Truncate(time.Second),
	}, nil
}
