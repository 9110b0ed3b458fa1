package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ainotebook/internal/apperr"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

type recordingPurger struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPurger) PurgeUser(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, userID)
	return p.err
}

func newTestService(t *testing.T) (*Service, *recordingPurger) {
	t.Helper()
	purger := &recordingPurger{}
	tokens := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	users := store.NewMemoryCollection[store.User](nil)
	logger := logging.NewLogger("auth", logging.DEBUG, io.Discard)
	return NewService(users, tokens, bcrypt.MinCost, purger, logger), purger
}

func register(t *testing.T, s *Service, username, email string) Session {
	t.Helper()
	sess, err := s.Register(context.Background(), RegisterInput{
		Username: username, Email: email, Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	return sess
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"missing field", RegisterInput{Username: "ann", Email: "a@b.c", Password: "secret1"}, "all fields are required"},
		{"bad email", RegisterInput{Username: "ann", Email: "not-an-email", Password: "secret1", ConfirmPassword: "secret1"}, "invalid email address"},
		{"display name", RegisterInput{Username: "ann", Email: "Ann <ann@example.com>", Password: "secret1", ConfirmPassword: "secret1"}, "invalid email address"},
		{"mismatch", RegisterInput{Username: "ann", Email: "a@b.c", Password: "secret1", ConfirmPassword: "secret2"}, "passwords do not match"},
		{"short", RegisterInput{Username: "ann", Email: "a@b.c", Password: "abc", ConfirmPassword: "abc"}, "password must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestRegister_CreatesUserAndTokens(t *testing.T) {
	s, _ := newTestService(t)

	sess := register(t, s, "ann", "Ann@Example.com")
	assert.NotEmpty(t, sess.User.ID)
	assert.Equal(t, "ann", sess.User.Username)
	assert.Equal(t, "ann@example.com", sess.User.Email)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.RefreshToken)

	claims, err := s.Tokens().ParseAccess(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)
	assert.Equal(t, "ann@example.com", claims.Email)

	stored, err := s.users.Get(context.Background(), sess.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.Password)
	assert.True(t, checkPasswordHash("secret1", stored.Password))
}

func TestRegister_Conflicts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	register(t, s, "ann", "ann@example.com")

	_, err := s.Register(ctx, RegisterInput{Username: "bob", Email: "ann@example.com", Password: "secret1", ConfirmPassword: "secret1"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.EqualError(t, err, "email already exists")

	_, err = s.Register(ctx, RegisterInput{Username: "ann", Email: "other@example.com", Password: "secret1", ConfirmPassword: "secret1"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.EqualError(t, err, "username already exists")
}

func TestLogin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	created := register(t, s, "ann", "ann@example.com")

	sess, err := s.Login(ctx, LoginInput{Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, sess.User.ID)

	_, err = s.Login(ctx, LoginInput{Email: "ann@example.com", Password: "wrong-pass"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.EqualError(t, err, "invalid email or password")

	_, err = s.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.EqualError(t, err, "invalid email or password")

	_, err = s.Login(ctx, LoginInput{Email: "ann@example.com"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLogin_UnknownEmailComparesDummyHash(t *testing.T) {
	s, _ := newTestService(t)
	register(t, s, "ann", "ann@example.com")

	_, err := s.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	require.NotEmpty(t, s.dummy)
	cost, err := bcrypt.Cost([]byte(s.dummy))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.False(t, checkPasswordHash("secret1", s.dummy))
}

func TestRefresh(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sess := register(t, s, "ann", "ann@example.com")

	pair, err := s.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	claims, err := s.Tokens().ParseAccess(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)

	_, err = s.Refresh(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.Refresh(ctx, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindAuth), "access token must not work as refresh token")
	assert.EqualError(t, err, "invalid refresh token")
}

func TestMe_UnknownUser(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Me(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualError(t, err, "user not found")
}

func TestUpdateProfile(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	ann := register(t, s, "ann", "ann@example.com")
	register(t, s, "bob", "bob@example.com")

	name := "annie"
	u, err := s.UpdateProfile(ctx, ann.User.ID, ProfileInput{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "annie", u.Username)
	assert.Equal(t, "ann@example.com", u.Email)

	taken := "bob@example.com"
	_, err = s.UpdateProfile(ctx, ann.User.ID, ProfileInput{Email: &taken})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	own := "ANN@example.com"
	u, err = s.UpdateProfile(ctx, ann.User.ID, ProfileInput{Email: &own})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)

	bad := "not-an-email"
	_, err = s.UpdateProfile(ctx, ann.User.ID, ProfileInput{Email: &bad})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateProfile_ConcurrentEmailChangesStayUnique(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	const users = 6
	ids := make([]string, users)
	for i := range ids {
		ids[i] = register(t, s, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i)).User.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			email := "same@example.com"
			_, err := s.UpdateProfile(ctx, id, ProfileInput{Email: &email})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), err.Error())
	}
	assert.Equal(t, 1, succeeded)

	all, err := s.users.List(ctx)
	require.NoError(t, err)
	count := 0
	for _, u := range all {
		if u.Email == "same@example.com" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestChangePassword(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	ann := register(t, s, "ann", "ann@example.com")

	err := s.ChangePassword(ctx, ann.User.ID, PasswordInput{CurrentPassword: "wrong-pass", NewPassword: "newsecret", ConfirmPassword: "newsecret"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	err = s.ChangePassword(ctx, ann.User.ID, PasswordInput{CurrentPassword: "secret1", NewPassword: "abc", ConfirmPassword: "abc"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = s.ChangePassword(ctx, ann.User.ID, PasswordInput{CurrentPassword: "secret1", NewPassword: "newsecret"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "confirmation is required")

	err = s.ChangePassword(ctx, ann.User.ID, PasswordInput{CurrentPassword: "secret1", NewPassword: "newsecret", ConfirmPassword: "other-secret"})
	assert.EqualError(t, err, "passwords do not match")

	require.NoError(t, s.ChangePassword(ctx, ann.User.ID, PasswordInput{CurrentPassword: "secret1", NewPassword: "newsecret", ConfirmPassword: "newsecret"}))

	_, err = s.Login(ctx, LoginInput{Email: "ann@example.com", Password: "secret1"})
	assert.Error(t, err)
	_, err = s.Login(ctx, LoginInput{Email: "ann@example.com", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestDeleteAccount_PurgesOwnedData(t *testing.T) {
	s, purger := newTestService(t)
	ctx := context.Background()
	ann := register(t, s, "ann", "ann@example.com")

	require.NoError(t, s.DeleteAccount(ctx, ann.User.ID))
	assert.Equal(t, []string{ann.User.ID}, purger.ids)

	_, err := s.Me(ctx, ann.User.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = s.DeleteAccount(ctx, ann.User.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteAccount_FailedPurgeKeepsUser(t *testing.T) {
	s, purger := newTestService(t)
	ctx := context.Background()
	ann := register(t, s, "ann", "ann@example.com")
	purger.err = errors.New("disk full")

	err := s.DeleteAccount(ctx, ann.User.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	me, err := s.Me(ctx, ann.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", me.Username)

	purger.err = nil
	require.NoError(t, s.DeleteAccount(ctx, ann.User.ID))
	assert.Equal(t, []string{ann.User.ID, ann.User.ID}, purger.ids)
}

func TestDeleteAccount_UnknownUserSkipsPurge(t *testing.T) {
	s, purger := newTestService(t)
	err := s.DeleteAccount(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, purger.ids)
}

func TestHashPassword(t *testing.T) {
	hash, err := hashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, checkPasswordHash("secret1", hash))
	assert.False(t, checkPasswordHash("secret2", hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
