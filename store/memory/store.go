// Package memory is an in-process Store implementation. It backs the test
// suites and small single-node deployments; durable state belongs in the
// postgres adapter.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/calthas/authcore"
)

// Store holds all records behind one mutex. The atomic contract of
// RotateRefreshToken and the Consume operations follows directly from the
// lock; there is no finer-grained concurrency to reason about.
type Store struct {
	mu sync.Mutex

	accounts     map[string]authcore.Account
	emailIndex   map[string]string
	refresh      map[[32]byte]authcore.RefreshToken
	verification map[[32]byte]authcore.OneTimeToken
	reset        map[[32]byte]authcore.OneTimeToken
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]authcore.Account),
		emailIndex:   make(map[string]string),
		refresh:      make(map[[32]byte]authcore.RefreshToken),
		verification: make(map[[32]byte]authcore.OneTimeToken),
		reset:        make(map[[32]byte]authcore.OneTimeToken),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateAccount(_ context.Context, account authcore.Account) (authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(account.Email)
	if _, exists := s.emailIndex[email]; exists {
		return authcore.Account{}, authcore.ErrDuplicate
	}

	now := time.Now()
	account.Email = email
	account.CreatedAt = now
	account.UpdatedAt = now

	s.accounts[account.ID] = account
	s.emailIndex[email] = account.ID
	return account, nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emailIndex[normalizeEmail(email)]
	if !ok {
		return authcore.Account{}, authcore.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) AccountByID(_ context.Context, id string) (authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return authcore.Account{}, authcore.ErrNotFound
	}
	return account, nil
}

func (s *Store) UpdateAccount(_ context.Context, account authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[account.ID]
	if !ok {
		return authcore.ErrNotFound
	}

	// Email is immutable through this operation; the index stays valid.
	account.Email = stored.Email
	account.CreatedAt = stored.CreatedAt
	account.UpdatedAt = time.Now()
	s.accounts[account.ID] = account
	return nil
}

func (s *Store) InsertRefreshToken(_ context.Context, token authcore.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refresh[token.SecretHash]; exists {
		return authcore.ErrDuplicate
	}
	s.refresh[token.SecretHash] = token
	return nil
}

func (s *Store) RefreshTokenByHash(_ context.Context, hash [32]byte) (authcore.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refresh[hash]
	if !ok {
		return authcore.RefreshToken{}, authcore.ErrNotFound
	}
	return token, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldHash [32]byte, next authcore.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldHash]
	if !ok {
		return authcore.ErrNotFound
	}
	if old.Revoked {
		return authcore.ErrRotateConflict
	}

	old.Revoked = true
	s.refresh[oldHash] = old
	s.refresh[next.SecretHash] = next
	return nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refresh[hash]
	if !ok {
		return nil
	}
	token.Revoked = true
	s.refresh[hash] = token
	return nil
}

func (s *Store) RevokeLineage(_ context.Context, lineageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, token := range s.refresh {
		if token.LineageID == lineageID && !token.Revoked {
			token.Revoked = true
			s.refresh[hash] = token
		}
	}
	return nil
}

func (s *Store) RevokeAllForAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, token := range s.refresh {
		if token.AccountID == accountID && !token.Revoked {
			token.Revoked = true
			s.refresh[hash] = token
		}
	}
	return nil
}

func (s *Store) InsertVerificationToken(_ context.Context, token authcore.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.verification[token.SecretHash]; exists {
		return authcore.ErrDuplicate
	}
	s.verification[token.SecretHash] = token
	return nil
}

func (s *Store) ConsumeVerificationToken(_ context.Context, hash [32]byte) (authcore.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(s.verification, hash)
}

func (s *Store) InsertResetToken(_ context.Context, token authcore.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reset[token.SecretHash]; exists {
		return authcore.ErrDuplicate
	}
	s.reset[token.SecretHash] = token
	return nil
}

func (s *Store) ConsumeResetToken(_ context.Context, hash [32]byte) (authcore.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(s.reset, hash)
}

// consume flips one token to used under the store lock. Used is one-way:
// nothing in this package ever writes Used = false over true.
func consume(tokens map[[32]byte]authcore.OneTimeToken, hash [32]byte) (authcore.OneTimeToken, error) {
	token, ok := tokens[hash]
	if !ok {
		return authcore.OneTimeToken{}, authcore.ErrNotFound
	}
	if token.Used || !token.ExpiresAt.After(time.Now()) {
		return authcore.OneTimeToken{}, authcore.ErrTokenConsumed
	}

	token.Used = true
	tokens[hash] = token
	return token, nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, token := range s.refresh {
		if !token.ExpiresAt.After(now) {
			delete(s.refresh, hash)
		}
	}
	for hash, token := range s.verification {
		if !token.ExpiresAt.After(now) {
			delete(s.verification, hash)
		}
	}
	for hash, token := range s.reset {
		if !token.ExpiresAt.After(now) {
			delete(s.reset, hash)
		}
	}
	return nil
}
