// Package auth implements password credentials, JWT access and refresh tokens,
// and the session lifecycle behind refresh-token rotation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/user"
	"github.com/jackc/pgx/v5"
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	CreateSession(ctx context.Context, sess *user.Session) error
	GetSession(ctx context.Context, jti string) (*user.Session, error)
	RevokeSession(ctx context.Context, jti string, at time.Time) (bool, error)
	RevokeUserSession(ctx context.Context, userID, jti string, at time.Time) error
}

// Observer receives authentication outcomes, typically for metrics.
type Observer interface {
	IncAuthSuccess(kind string)
	IncAuthFailure(kind string)
}

type nopObserver struct{}

func (nopObserver) IncAuthSuccess(string) {}
func (nopObserver) IncAuthFailure(string) {}

// TokenPair is an access token plus its rotating refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Result is returned by Register and Login.
type Result struct {
	User *user.User `json:"user"`
	TokenPair
}

// RegisterInput holds the fields for a new account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Service provides authentication operations.
type Service struct {
	users      UserStore
	tx         database.Transactor
	tokens     *TokenIssuer
	bcryptCost int
	observer   Observer
	now        func() time.Time
}

// NewService creates a new authentication service.
func NewService(users UserStore, tx database.Transactor, tokens *TokenIssuer, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	return &Service{
		users:      users,
		tx:         tx,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		observer:   nopObserver{},
		now:        time.Now,
	}
}

// SetObserver installs an observer for authentication outcomes.
func (s *Service) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// Register creates an account and signs the user in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	email := NormalizeEmail(in.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, emailInUse()
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.Create(ctx, user.CreateUserInput{
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
		})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return emailInUse()
			}
			return err
		}
		pair, err := s.issuePair(ctx, u.ID)
		if err != nil {
			return err
		}
		res = &Result{User: u, TokenPair: *pair}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observer.IncAuthSuccess("register")
	return res, nil
}

// Login verifies credentials and issues a new token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.observer.IncAuthFailure("login")
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.observer.IncAuthFailure("login")
		return nil, invalidCredentials()
	}

	pair, err := s.issuePair(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.observer.IncAuthSuccess("login")
	return &Result{User: u, TokenPair: *pair}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented session is
// revoked in the same transaction that creates its successor, so a refresh
// token can be used at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.observer.IncAuthFailure("refresh")
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	var pair *TokenPair
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := s.now()
		sess, err := s.users.GetSession(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.Unauthorized("Invalid refresh token")
			}
			return err
		}
		if sess.UserID != claims.Subject || !sess.Usable(now) {
			return apperr.Unauthorized("Invalid refresh token")
		}

		revoked, err := s.users.RevokeSession(ctx, sess.JTI, now)
		if err != nil {
			return err
		}
		if !revoked {
			return apperr.Unauthorized("Invalid refresh token")
		}

		pair, err = s.issuePair(ctx, claims.Subject)
		return err
	})
	if err != nil {
		if apperr.IsCode(err, apperr.CodeUnauthorized) {
			s.observer.IncAuthFailure("refresh")
		}
		return nil, err
	}
	s.observer.IncAuthSuccess("refresh")
	return pair, nil
}

// Logout revokes the session behind refreshToken. Tokens that fail
// verification are ignored so logout always succeeds.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.users.RevokeUserSession(ctx, claims.Subject, claims.ID, s.now())
}

// Me loads the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Unauthorized("Unauthorized")
		}
		return nil, err
	}
	return u, nil
}

// Authenticate verifies an access token and returns the user id it names.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		s.observer.IncAuthFailure("access")
		return "", apperr.Unauthorized("Unauthorized")
	}
	return claims.Subject, nil
}

func (s *Service) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateSession(ctx, &user.Session{
		JTI:       refresh.JTI,
		UserID:    userID,
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}

func emailInUse() *apperr.Error {
	return apperr.Conflict(apperr.CodeEmailInUse, "Email already in use")
}

func invalidCredentials() *apperr.Error {
	return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidCredentials, "Invalid email or password")
}
