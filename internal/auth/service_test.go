package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/optimapos/optimapos/internal/shared"
)

type memoryUserRepo struct {
	users map[string]User
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (User, error) {
	u, ok := r.users[email]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, id int64) (User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func newAuthService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	repo := &memoryUserRepo{users: map[string]User{
		"mira@optimapos.test": {ID: 7, Email: "mira@optimapos.test", Name: "Mira", PasswordHash: hash, IsActive: true},
		"left@optimapos.test": {ID: 8, Email: "left@optimapos.test", Name: "Left", PasswordHash: hash, IsActive: false},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewTokenStore(client, time.Hour))
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	token, user, err := svc.Login(ctx, "mira@optimapos.test", "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.NotEmpty(t, token)

	actor, err := svc.Identity(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), actor.ID)
	require.Equal(t, "Mira", actor.Name)
}

func TestLoginRejectsBadCredentialsAndInactiveUsers(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "mira@optimapos.test", "wrong password!")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@optimapos.test", "correct horse battery staple")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "left@optimapos.test", "correct horse battery staple")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials, "inactive accounts cannot log in")
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "mira@optimapos.test", "correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.Identity(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestMiddlewareInjectsActor(t *testing.T) {
	svc := newAuthService(t)
	token, _, err := svc.Login(context.Background(), "mira@optimapos.test", "correct horse battery staple")
	require.NoError(t, err)

	var seen shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := svc.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), seen.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer deadbeef")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
