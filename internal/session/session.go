// Package session carries the authenticated storefront user through a request.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid token")
)

// Role is the user's level as reported by the booking API.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleUser     Role = "user"
)

// Session is the caller's token and identity.
type Session struct {
	Token  string
	UserID int64
	Role   Role
}

// CanManageBookings reports whether the session may use back-office endpoints.
func (s Session) CanManageBookings() bool {
	return s.Role == RoleAdmin || s.Role == RoleEmployee
}

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// RoleResolver looks up a user's role when the token carries none.
type RoleResolver interface {
	UserRole(ctx context.Context, token string) (string, error)
}

// Authenticator turns an Authorization header into a Session.
type Authenticator struct {
	secret   []byte
	resolver RoleResolver
	parser   *jwt.Parser
}

// NewAuthenticator creates an authenticator. With an empty secret token claims
// are read without signature verification, the role claim is ignored and the
// role always comes from resolver. resolver may be nil, in which case
// unverified tokens only ever get RoleUser.
func NewAuthenticator(secret string, resolver RoleResolver) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		resolver: resolver,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Authenticate parses the header and resolves the caller's role.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Session, error) {
	token, ok := BearerToken(header)
	if !ok {
		return Session{}, ErrNoSession
	}

	claims, verified, err := a.claims(token)
	if err != nil {
		return Session{}, err
	}

	userID, err := userIDFromClaims(claims)
	if err != nil {
		return Session{}, err
	}

	s := Session{Token: token, UserID: userID}
	if role, ok := claims["role"].(string); ok && role != "" && verified {
		s.Role = Role(strings.ToLower(role))
		return s, nil
	}

	s.Role = RoleUser
	if a.resolver != nil {
		role, err := a.resolver.UserRole(ctx, token)
		if err != nil {
			return Session{}, fmt.Errorf("resolve role: %w", err)
		}
		if role != "" {
			s.Role = Role(strings.ToLower(role))
		}
	}
	return s, nil
}

// claims parses the token; verified reports whether its signature was checked.
func (a *Authenticator) claims(token string) (claims jwt.MapClaims, verified bool, err error) {
	claims = jwt.MapClaims{}
	if len(a.secret) == 0 {
		if _, _, err := a.parser.ParseUnverified(token, claims); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return claims, false, nil
	}

	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, true, nil
}

func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	raw, ok := claims["id"]
	if !ok {
		raw, ok = claims["sub"]
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: user id %q", ErrInvalidToken, v)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%w: user id type %T", ErrInvalidToken, raw)
	}
}
