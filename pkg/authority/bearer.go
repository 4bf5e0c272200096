package authority

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerClaims is the signed, compact form of a token grant handed to an
// out-of-process executor. It carries identity and expiry only; the
// allowlists stay server-side and are checked against the stored token on
// presentation.
type BearerClaims struct {
	TokenID   string `json:"token_id"`
	SessionID string `json:"session_id,omitempty"`
	TaskType  string `json:"task_type,omitempty"`
	jwt.RegisteredClaims
}

// Bearer signs a compact JWT for the token using HS256.
func Bearer(token *ExecutionToken, signingKey []byte) (string, error) {
	claims := BearerClaims{
		TokenID:   token.ID,
		SessionID: token.SessionID,
		TaskType:  token.TaskType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   token.Scope,
			IssuedAt:  jwt.NewNumericDate(token.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign bearer for token %s: %w", token.ID, err)
	}
	return signed, nil
}

// ParseBearer verifies the signature and expiry of a bearer string and
// returns its claims. The caller still resolves the token id against the
// store; a valid bearer for a revoked token is worthless.
func ParseBearer(bearer string, signingKey []byte, now time.Time) (*BearerClaims, error) {
	var claims BearerClaims
	_, err := jwt.ParseWithClaims(bearer, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return signingKey, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("parse bearer: %w", err)
	}
	return &claims, nil
}
