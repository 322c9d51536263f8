// Package auth issues and validates session tokens and hosts the OAuth
// sign-in flows that produce them.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adamwitko/retro/domain"
)

const sessionKeyPrefix = "session:"

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrBadAuthorization     = errors.New("bad auth header")
	ErrSessionRevoked       = errors.New("session revoked or expired")
)

// Sessions mints HS256 session tokens after OAuth sign-in and validates the
// ones presented on later requests. Token ids are registered in Redis so a
// session can be revoked before its expiry and so every instance agrees.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	rc     *redis.Client
	parser *jwt.Parser
}

// NewSessions creates a session registry. The secret signs every token.
func NewSessions(secret []byte, ttl time.Duration, rc *redis.Client) *Sessions {
	return &Sessions{
		secret: secret,
		ttl:    ttl,
		rc:     rc,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// Mint issues a session token for the signed-in username.
func (s *Sessions) Mint(ctx context.Context, username string) (string, error) {
	jti := uuid.NewString()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"jti": jti,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	if err := s.rc.Set(ctx, sessionKeyPrefix+jti, username, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// UserFromAuthHeader extracts the session's user from an Authorization
// header.
func (s *Sessions) UserFromAuthHeader(ctx context.Context, header string) (domain.UserID, error) {
	token, err := bearerToken(header)
	if err != nil {
		return "", err
	}
	return s.UserFromToken(ctx, token)
}

// UserFromToken validates a session token and returns its user.
func (s *Sessions) UserFromToken(ctx context.Context, token string) (domain.UserID, error) {
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return "", errors.New("missing jti")
	}
	exists, err := s.rc.Exists(ctx, sessionKeyPrefix+jti).Result()
	if err != nil {
		return "", err
	}
	if exists == 0 {
		return "", ErrSessionRevoked
	}
	return domain.UserID(sub), nil
}

// RevokeAuthHeader invalidates the session presented in an Authorization
// header.
func (s *Sessions) RevokeAuthHeader(ctx context.Context, header string) error {
	token, err := bearerToken(header)
	if err != nil {
		return err
	}
	return s.Revoke(ctx, token)
}

// Revoke invalidates a session token ahead of its expiry.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return errors.New("missing jti")
	}
	return s.rc.Del(ctx, sessionKeyPrefix+jti).Err()
}

func bearerToken(header string) (string, error) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", ErrMissingAuthorization
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(trimmed, prefix) {
		return "", ErrBadAuthorization
	}
	token := trimmed[len(prefix):]
	if strings.Count(token, ".") != 2 {
		return "", ErrBadAuthorization
	}
	return token, nil
}
