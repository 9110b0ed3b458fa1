package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ainotebook/internal/apperr"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

// Purger removes everything a user owns outside the users collection.
type Purger interface {
	PurgeUser(ctx context.Context, userID string) error
}

// Service implements registration, login and account management.
type Service struct {
	users      store.Collection[store.User]
	tokens     *TokenManager
	bcryptCost int
	purger     Purger
	logger     *logging.Logger

	dummyOnce sync.Once
	dummy     string
}

// NewService creates the account service. purger may be nil, in which case
// deleting an account leaves the user's records in place.
func NewService(users store.Collection[store.User], tokens *TokenManager, bcryptCost int, purger Purger, logger *logging.Logger) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		purger:     purger,
		logger:     logger,
	}
}

// Tokens exposes the token manager used by the middleware.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Session is returned by Register and Login.
type Session struct {
	User         store.PublicUser `json:"user"`
	Token        string           `json:"token"`
	RefreshToken string           `json:"refresh_token"`
}

// Register creates an account and signs the user in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, func(existing []store.User) (store.User, error) {
		for _, u := range existing {
			if normalizeEmail(u.Email) == email {
				return store.User{}, apperr.Conflict("email already exists")
			}
			if u.Username == username {
				return store.User{}, apperr.Conflict("username already exists")
			}
		}
		now := store.Now()
		return store.User{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     email,
			Password:  hash,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	if err != nil {
		return Session{}, err
	}

	s.logger.WithContext("user_id", user.ID).Info("user registered")
	return s.session(user)
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	email := normalizeEmail(in.Email)

	users, err := s.users.List(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, u := range users {
		if normalizeEmail(u.Email) != email {
			continue
		}
		if !checkPasswordHash(in.Password, u.Password) {
			break
		}
		s.logger.WithContext("user_id", u.ID).Debug("user logged in")
		return s.session(u)
	}
	if !containsEmail(users, email) {
		// unknown emails pay for a hash compare too
		checkPasswordHash(in.Password, s.dummyHash())
	}
	s.logger.Debug("failed login attempt")
	return Session{}, apperr.Auth("invalid email or password")
}

// dummyHash is a hash at the service's cost that no password matches.
func (s *Service) dummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := hashPassword(uuid.NewString(), s.bcryptCost)
		if err != nil {
			s.logger.WithContext("error", err.Error()).Warn("failed to create dummy password hash")
			return
		}
		s.dummy = hash
	})
	return s.dummy
}

func containsEmail(users []store.User, email string) bool {
	for _, u := range users {
		if normalizeEmail(u.Email) == email {
			return true
		}
	}
	return false
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, apperr.Validation("refresh token is required")
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, apperr.Auth("invalid refresh token")
	}
	return s.tokens.Issue(claims.UserID, claims.Email)
}

// Me returns the public profile of userID.
func (s *Service) Me(ctx context.Context, userID string) (store.PublicUser, error) {
	u, err := s.find(ctx, userID)
	if err != nil {
		return store.PublicUser{}, err
	}
	return u.Public(), nil
}

// UpdateProfile changes username and/or email.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (store.PublicUser, error) {
	if err := in.Validate(); err != nil {
		return store.PublicUser{}, err
	}

	updated, err := s.users.UpdateChecked(ctx, userID, func(existing []store.User, u *store.User) error {
		for _, other := range existing {
			if other.ID == u.ID {
				continue
			}
			if in.Email != nil && normalizeEmail(other.Email) == normalizeEmail(*in.Email) {
				return apperr.Conflict("email already exists")
			}
			if in.Username != nil && other.Username == strings.TrimSpace(*in.Username) {
				return apperr.Conflict("username already exists")
			}
		}
		if in.Username != nil {
			u.Username = strings.TrimSpace(*in.Username)
		}
		if in.Email != nil {
			u.Email = normalizeEmail(*in.Email)
		}
		u.UpdatedAt = store.Now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.PublicUser{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return store.PublicUser{}, err
	}
	return updated.Public(), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID string, in PasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	u, err := s.find(ctx, userID)
	if err != nil {
		return err
	}
	if !checkPasswordHash(in.CurrentPassword, u.Password) {
		return apperr.Auth("current password is incorrect")
	}
	hash, err := hashPassword(in.NewPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.users.Update(ctx, userID, func(u *store.User) error {
		u.Password = hash
		u.UpdatedAt = store.Now()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.WithContext("user_id", userID).Info("password changed")
	return nil
}

// DeleteAccount removes everything the user owns, when a purger is set, and
// then the user. A failed purge leaves the account in place.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.find(ctx, userID); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.PurgeUser(ctx, userID); err != nil {
			return fmt.Errorf("purge user data: %w", err)
		}
	}
	if _, err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return err
	}
	s.logger.WithContext("user_id", userID).Info("account deleted")
	return nil
}

func (s *Service) find(ctx context.Context, userID string) (store.User, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperr.NotFound("user not found")
	}
	return u, err
}

func (s *Service) session(u store.User) (Session, error) {
	pair, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u.Public(), Token: pair.Token, RefreshToken: pair.RefreshToken}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
