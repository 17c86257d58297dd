package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
)

// TokenIssuer signs and verifies this service's own session tokens.
type TokenIssuer interface {
	Issue(email string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// AuthService turns an OAuth access token into an app session.
type AuthService struct {
	identity  ports.IdentityProvider
	exchanger ports.SessionExchanger
	tokens    TokenIssuer
}

// NewAuthService creates a new AuthService. exchanger may be nil, in which
// case no backend session is requested.
func NewAuthService(identity ports.IdentityProvider, exchanger ports.SessionExchanger, tokens TokenIssuer) *AuthService {
	return &AuthService{identity: identity, exchanger: exchanger, tokens: tokens}
}

// Login resolves the user's email, exchanges the token with the backend and
// issues a session token scoped to that email.
func (s *AuthService) Login(ctx context.Context, accessToken string) (*domain.AuthSession, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	email, err := s.identity.Email(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: identity provider returned no email", ErrNotAuthenticated)
	}

	var backendToken string
	if s.exchanger != nil {
		backendToken, err = s.exchanger.Exchange(ctx, accessToken, email)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
	}

	token, expires, err := s.tokens.Issue(email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &domain.AuthSession{Email: email, BackendToken: backendToken, Token: token, ExpiresAt: expires}, nil
}

// Authenticate returns the email a session token was issued for.
func (s *AuthService) Authenticate(token string) (string, error) {
	email, err := s.tokens.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return email, nil
}
