package reauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

const purposeReauth = "reauth"

// Claims is the re-auth token payload. Purpose distinguishes these
// tokens from session tokens signed with the same key.
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 re-auth tokens. A token is accepted only
// when its subject matches the claimed signer and it was issued within
// maxAge, so a captured token goes stale quickly.
type TokenVerifier struct {
	signingKey []byte
	maxAge     time.Duration
	now        func() time.Time
}

func NewTokenVerifier(signingKey string, maxAge time.Duration) *TokenVerifier {
	return &TokenVerifier{
		signingKey: []byte(signingKey),
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Issue mints a re-auth token for a user. Exposed for the login surface
// and for tests; the engine itself only verifies.
func (v *TokenVerifier) Issue(userID domain.UserID) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose: purposeReauth,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.maxAge)),
		},
	})
	return token.SignedString(v.signingKey)
}

func (v *TokenVerifier) Verify(_ context.Context, signer domain.UserID, proof Proof) error {
	if proof.Token == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "re-auth token is required")
	}

	parsed, err := jwt.ParseWithClaims(proof.Token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return dErrors.New(dErrors.CodeUnauthorized, "re-auth token has expired")
		}
		return dErrors.New(dErrors.CodeUnauthorized, "invalid re-auth token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid re-auth token claims")
	}
	if claims.Purpose != purposeReauth {
		return dErrors.New(dErrors.CodeUnauthorized, "token was not issued for re-authentication")
	}
	if claims.Subject != signer.String() {
		return dErrors.New(dErrors.CodeUnauthorized, "re-auth token belongs to a different user")
	}
	if claims.IssuedAt == nil || v.now().Sub(claims.IssuedAt.Time) > v.maxAge {
		return dErrors.New(dErrors.CodeUnauthorized, "re-auth token is too old")
	}
	return nil
}
