// Package auth verifies the bearer tokens issued by the identity provider.
// Tokens are HS256 JWTs whose sub claim carries the user identity.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Verifier validates bearer tokens and extracts the acting user.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given HS256 signing secret.
func NewVerifier(secret types.SecretString) *Verifier {
	return &Verifier{secret: []byte(secret.Unmask())}
}

// FromAuthorizationHeader validates the Authorization header value and
// returns the Actor the token was issued to. The header must carry a
// "Bearer <token>" credential.
func (v *Verifier) FromAuthorizationHeader(header string) (types.Actor, error) {
	if header == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"missing authorization header", nil)
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"authorization header is not a bearer credential", nil)
	}

	return v.Verify(token)
}

// Verify validates a raw token string.
func (v *Verifier) Verify(raw string) (types.Actor, error) {
	parsed, err := jwt.Parse(raw,
		func(_ *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenExpired,
				"token has expired", err)
		}
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"token validation failed", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"token has no subject", err)
	}

	return types.Actor{ID: sub}, nil
}

// IssueForTest mints a token signed with the verifier's secret. It exists
// for integration tests and the local environment, not for production
// issuance, which belongs to the identity provider.
func (v *Verifier) IssueForTest(subject string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
