package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/datingchat-server/internal/store"
)

var (
	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownUser is returned when a token is requested for a missing user.
	ErrUnknownUser = errors.New("unknown user")
)

// Service issues and checks access tokens. Credentials live in the identity
// layer; this service only binds a username to a signed token.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// IssueToken signs a token for an existing user.
func (s *Service) IssueToken(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken checks a token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims.Username = strings.ToLower(claims.Username)
	return claims, nil
}
