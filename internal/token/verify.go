package token

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/TwigBush/methodsec/internal/identity"
)

// Verifier checks tokens minted by Issue with the same secret.
type Verifier struct {
	key    jwk.Key
	issuer string
}

func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	key, err := signingKey(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key, issuer: issuer}, nil
}

// Verify validates signature, expiry and issuer, then returns the
// authenticated identity the token describes.
func (v *Verifier) Verify(raw string) (*identity.Identity, error) {
	opts := []jwt.ParseOption{jwt.WithKey(jwa.HS256(), v.key), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	tok, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("token_invalid: %w", err)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return nil, fmt.Errorf("token_invalid: missing subject")
	}

	var claim any
	var names []string
	if err := tok.Get(AuthoritiesClaim, &claim); err == nil {
		switch list := claim.(type) {
		case []any:
			for _, a := range list {
				if s, ok := a.(string); ok {
					names = append(names, s)
				}
			}
		case []string:
			names = list
		}
	}

	details := map[string]any{"token": true}
	if jti, ok := tok.JwtID(); ok {
		details["jti"] = jti
	}
	return identity.NewAuthenticated(sub, names...).WithDetails(details), nil
}
