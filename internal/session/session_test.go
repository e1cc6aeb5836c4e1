package session

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) UserRole(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestAuthenticateVerified(t *testing.T) {
	auth := NewAuthenticator("s3cret", nil)
	ctx := context.Background()

	t.Run("valid token with role", func(t *testing.T) {
		token := sign(t, "s3cret", jwt.MapClaims{"id": 42, "role": "Admin"})
		s, err := auth.Authenticate(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), s.UserID)
		assert.Equal(t, RoleAdmin, s.Role)
		assert.Equal(t, token, s.Token)
		assert.True(t, s.CanManageBookings())
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := sign(t, "other", jwt.MapClaims{"id": 42})
		_, err := auth.Authenticate(ctx, "Bearer "+token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("sub claim as string", func(t *testing.T) {
		token := sign(t, "s3cret", jwt.MapClaims{"sub": "7", "role": "user"})
		s, err := auth.Authenticate(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), s.UserID)
		assert.False(t, s.CanManageBookings())
	})

	t.Run("missing id", func(t *testing.T) {
		token := sign(t, "s3cret", jwt.MapClaims{"role": "user"})
		_, err := auth.Authenticate(ctx, "Bearer "+token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no header", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "")
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestAuthenticateResolvesRole(t *testing.T) {
	ctx := context.Background()
	token := sign(t, "any", jwt.MapClaims{"id": 5})

	resolver := new(mockResolver)
	resolver.On("UserRole", ctx, token).Return("employee", nil).Once()

	auth := NewAuthenticator("", resolver)
	s, err := auth.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, RoleEmployee, s.Role)
	resolver.AssertExpectations(t)

	failing := new(mockResolver)
	failing.On("UserRole", ctx, token).Return("", errors.New("down")).Once()
	_, err = NewAuthenticator("", failing).Authenticate(ctx, "Bearer "+token)
	assert.Error(t, err)
}

func TestAuthenticateWithoutResolverDefaultsToUser(t *testing.T) {
	token := sign(t, "any", jwt.MapClaims{"id": 5})
	s, err := NewAuthenticator("", nil).Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, s.Role)
}

func TestAuthenticateUnverifiedIgnoresRoleClaim(t *testing.T) {
	ctx := context.Background()
	token := sign(t, "attacker-key", jwt.MapClaims{"id": 999, "role": "admin"})

	t.Run("role comes from resolver", func(t *testing.T) {
		resolver := new(mockResolver)
		resolver.On("UserRole", ctx, token).Return("user", nil).Once()

		s, err := NewAuthenticator("", resolver).Authenticate(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, RoleUser, s.Role)
		assert.False(t, s.CanManageBookings())
		resolver.AssertExpectations(t)
	})

	t.Run("no resolver", func(t *testing.T) {
		s, err := NewAuthenticator("", nil).Authenticate(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, RoleUser, s.Role)
	})
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithSession(context.Background(), Session{UserID: 3, Role: RoleUser})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), s.UserID)
}
