// Package reauth verifies that the person recording an electronic
// signature re-authenticated at the moment of signing. A session being
// logged in is not enough; the signer must present fresh proof of
// identity, either a short-lived re-auth token or their password.
package reauth

import (
	"context"

	"recordvault/pkg/domain"
)

// Proof is the fresh credential presented alongside a signature. Exactly
// one of Token or Password is expected.
type Proof struct {
	Token    string
	Password string
}

// Verifier checks a proof against the claimed signer. A verification
// failure means the signature must not be recorded.
type Verifier interface {
	Verify(ctx context.Context, signer domain.UserID, proof Proof) error
}
