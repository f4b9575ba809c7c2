// Package token issues and verifies the HS256 bearer tokens that carry a
// caller's principal and authorities.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const AuthoritiesClaim = "authorities"

var ErrNoSecret = errors.New("token secret is empty")

type IssueConfig struct {
	Issuer string
	TTL    time.Duration
}

// Issue mints a signed token for subject.
func Issue(secret []byte, subject string, authorities []string, cfg IssueConfig) (string, error) {
	key, err := signingKey(secret)
	if err != nil {
		return "", err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	now := time.Now().UTC()
	tok, err := jwt.NewBuilder().
		Issuer(cfg.Issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(cfg.TTL)).
		JwtID(uuid.NewString()).
		Claim(AuthoritiesClaim, authorities).
		Build()
	if err != nil {
		return "", fmt.Errorf("token_build: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), key))
	if err != nil {
		return "", fmt.Errorf("token_sign: %w", err)
	}
	return string(signed), nil
}

func signingKey(secret []byte) (jwk.Key, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	key, err := jwk.Import(secret)
	if err != nil {
		return nil, fmt.Errorf("token_key: %w", err)
	}
	return key, nil
}
