package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is terminal for a connection attempt: the caller
// closes the transport without sending a frame. No retries.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier resolves credential tokens to user identities. Tokens are
// HMAC-signed JWTs carrying the user id in the "id" claim, with "sub"
// as a fallback for standard-claim issuers.
type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey}
}

// Verify resolves token to a user id. Any parse, signature, or claim
// failure maps to ErrUnauthenticated.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: no token provided", ErrUnauthenticated)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		// Validate the algorithm is HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims type", ErrUnauthenticated)
	}

	userID, _ := claims["id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: missing id claim", ErrUnauthenticated)
	}

	return userID, nil
}

// TokenFromRequest extracts the credential from an HTTP request or
// WebSocket handshake: the "token" query parameter takes precedence,
// then the "token" cookie.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}
