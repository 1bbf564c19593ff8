package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
)

// TokenVerifier verifies bearer tokens presented by connecting clients.
// The engine never issues or refreshes tokens; that belongs to the
// identity provider in front of it.
type TokenVerifier interface {
	// Verify returns the verified subject (user ID) for a bearer token.
	Verify(token string) (string, error)
}

// TokenConfig holds configuration for token verification.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// tokenVerifier implements TokenVerifier with HMAC-signed JWTs.
type tokenVerifier struct {
	config TokenConfig
}

// NewTokenVerifier creates a new TokenVerifier.
func NewTokenVerifier(config TokenConfig) (TokenVerifier, error) {
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	return &tokenVerifier{config: config}, nil
}

func (v *tokenVerifier) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.config.SigningKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domainerror.ErrTokenExpired
		}
		return "", domainerror.Wrap(domainerror.ErrTokenInvalid, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", domainerror.ErrTokenInvalid
	}
	return subject, nil
}
