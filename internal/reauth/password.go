package reauth

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// CredentialStore resolves the stored password hash for a user.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID domain.UserID) (string, error)
}

// PasswordVerifier checks a re-entered password against the stored
// bcrypt hash. Unknown users and wrong passwords produce the same error
// so the signing surface does not leak which accounts exist.
type PasswordVerifier struct {
	credentials CredentialStore
}

func NewPasswordVerifier(credentials CredentialStore) *PasswordVerifier {
	return &PasswordVerifier{credentials: credentials}
}

func (v *PasswordVerifier) Verify(ctx context.Context, signer domain.UserID, proof Proof) error {
	if proof.Password == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "password re-entry is required")
	}

	hash, err := v.credentials.PasswordHash(ctx, signer)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "re-authentication failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(proof.Password)); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "re-authentication failed")
	}
	return nil
}

// InMemoryCredentialStore backs the password verifier in tests and
// single-process deployments.
type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	hashes map[domain.UserID]string
}

func NewMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{hashes: make(map[domain.UserID]string)}
}

// SetPassword stores a bcrypt hash of the password.
func (s *InMemoryCredentialStore) SetPassword(userID domain.UserID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[userID] = string(hash)
	return nil
}

func (s *InMemoryCredentialStore) PasswordHash(_ context.Context, userID domain.UserID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.hashes[userID]
	if !ok {
		return "", errors.New("no credentials on file")
	}
	return hash, nil
}

// Chain tries verifiers in order and accepts the first success. Used to
// let signers present either a re-auth token or their password.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, signer domain.UserID, proof Proof) error {
	if len(c) == 0 {
		return dErrors.New(dErrors.CodeInternal, "no re-auth verifiers configured")
	}
	var last error
	for _, v := range c {
		if err := v.Verify(ctx, signer, proof); err != nil {
			last = err
			continue
		}
		return nil
	}
	return last
}
