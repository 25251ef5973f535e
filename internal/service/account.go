package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
	"github.com/iliyamo/project-tracker/internal/utils"
)

// Mailer hands a message to the mail dispatcher. Delivery is fire and
// forget from the caller's point of view.
type Mailer interface {
	Send(ctx context.Context, m model.Mail) error
}

// AccountConfig holds the registration settings.
type AccountConfig struct {
	BcryptCost    int
	ActivationTTL time.Duration
	BaseURL       string // absolute prefix of the activation link
	MailFrom      string
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	UserID              uint64
	ActivationEmailSent bool
}

// ActivateResult is returned by Activate. AlreadyActive is set when the
// account had been activated before and the token was not checked.
type ActivateResult struct {
	Activated     bool
	AlreadyActive bool
}

// AccountService handles registration, activation and the profile view.
type AccountService struct {
	users  repository.UserStore
	codec  *utils.TokenCodec
	mailer Mailer
	cfg    AccountConfig
}

func NewAccountService(users repository.UserStore, codec *utils.TokenCodec, mailer Mailer, cfg AccountConfig) *AccountService {
	if cfg.ActivationTTL <= 0 {
		cfg.ActivationTTL = 6 * time.Hour
	}
	return &AccountService{users: users, codec: codec, mailer: mailer, cfg: cfg}
}

// activationBinding fingerprints the parts of an account that activation
// changes, so an activation token stops working once it has been used or
// the password was reset.
func activationBinding(u model.User) string {
	return utils.HashToken(u.PasswordHash + "|" + strconv.FormatBool(u.IsActive))
}

// Register creates an inactive account and mails its activation link.
func (s *AccountService) Register(ctx context.Context, email, password string) (RegisterResult, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return RegisterResult{}, invalid("email", "a valid email address is required")
	}
	if password == "" {
		return RegisterResult{}, invalid("password", "password is required")
	}
	if len(password) > 72 {
		return RegisterResult{}, invalid("password", "password must be at most 72 bytes")
	}

	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return RegisterResult{}, ErrEmailInUse
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	u := model.User{ID: id, Email: email, PasswordHash: hash}
	token, err := s.codec.EncodeBound(id, s.cfg.ActivationTTL, utils.KindActivation, activationBinding(u))
	if err != nil {
		return RegisterResult{}, fmt.Errorf("issue activation token: %w", err)
	}
	msg := model.Mail{
		Subject:    "Activate your account",
		Body:       "Open the link below to activate your account:\n\n" + s.activationLink(id, token),
		From:       s.cfg.MailFrom,
		Recipients: []string{email},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		logger.Error().Err(err).Uint64("user_id", id).Msg("activation email not dispatched")
		return RegisterResult{UserID: id}, nil
	}
	return RegisterResult{UserID: id, ActivationEmailSent: true}, nil
}

func (s *AccountService) activationLink(id uint64, token string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/v1/auth/activate/%d/%s", base, id, url.PathEscape(token))
}

// Activate marks the user active when token is a live activation token
// issued for it. Activating an active account succeeds without looking
// at the token.
func (s *AccountService) Activate(ctx context.Context, userID uint64, token string) (ActivateResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ActivateResult{}, ErrInvalidActivationToken
		}
		return ActivateResult{}, fmt.Errorf("load user: %w", err)
	}
	if u.IsActive {
		return ActivateResult{Activated: true, AlreadyActive: true}, nil
	}
	cl, err := s.codec.Decode(token)
	if err != nil || cl.Kind != utils.KindActivation || cl.UserID != u.ID || cl.Binding != activationBinding(u) {
		return ActivateResult{}, ErrInvalidActivationToken
	}
	changed, err := s.users.Activate(ctx, u.ID)
	if err != nil {
		return ActivateResult{}, fmt.Errorf("activate user: %w", err)
	}
	logger.Info().Uint64("user_id", u.ID).Msg("account activated")
	return ActivateResult{Activated: true, AlreadyActive: !changed}, nil
}

// Profile returns the caller's account.
func (s *AccountService) Profile(ctx context.Context, id model.Identity) (model.User, error) {
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrUnauthenticated
		}
		return model.User{}, err
	}
	return u, nil
}
