package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calthas/authcore"
)

func hashOf(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func seedAccount(t *testing.T, s *Store, email string) authcore.Account {
	t.Helper()
	account, err := s.CreateAccount(context.Background(), authcore.Account{
		ID:           "acc-" + email,
		Email:        email,
		PasswordHash: "$argon2id$...",
		Role:         authcore.RoleUser,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s := New()
	seedAccount(t, s, "a@x.com")

	_, err := s.CreateAccount(context.Background(), authcore.Account{ID: "other", Email: "A@x.com "})
	if !errors.Is(err, authcore.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccountLookups(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	byEmail, err := s.AccountByEmail(context.Background(), "a@x.com")
	if err != nil || byEmail.ID != account.ID {
		t.Fatalf("by email: %v %v", byEmail.ID, err)
	}
	byID, err := s.AccountByID(context.Background(), account.ID)
	if err != nil || byID.Email != "a@x.com" {
		t.Fatalf("by id: %v %v", byID.Email, err)
	}

	if _, err := s.AccountByEmail(context.Background(), "ghost@x.com"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateRefreshTokenSingleWinner(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	oldHash := hashOf("old")
	if err := s.InsertRefreshToken(context.Background(), authcore.RefreshToken{
		SecretHash: oldHash,
		AccountID:  account.ID,
		LineageID:  "lin-1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.RotateRefreshToken(context.Background(), oldHash, authcore.RefreshToken{
				SecretHash: hashOf("next-" + string(rune('a'+i))),
				AccountID:  account.ID,
				LineageID:  "lin-1",
				ExpiresAt:  time.Now().Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, authcore.ErrRotateConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one rotation may win, got %d", wins)
	}

	old, err := s.RefreshTokenByHash(context.Background(), oldHash)
	if err != nil || !old.Revoked {
		t.Fatalf("old record must be revoked: %+v %v", old, err)
	}
}

func TestRotateUnknownHash(t *testing.T) {
	s := New()
	err := s.RotateRefreshToken(context.Background(), hashOf("ghost"), authcore.RefreshToken{SecretHash: hashOf("next")})
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeLineageAndAccount(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	for _, spec := range []struct{ name, lineage string }{
		{"t1", "lin-1"}, {"t2", "lin-1"}, {"t3", "lin-2"},
	} {
		if err := s.InsertRefreshToken(context.Background(), authcore.RefreshToken{
			SecretHash: hashOf(spec.name),
			AccountID:  account.ID,
			LineageID:  spec.lineage,
			ExpiresAt:  time.Now().Add(time.Hour),
		}); err != nil {
			t.Fatalf("insert %s: %v", spec.name, err)
		}
	}

	if err := s.RevokeLineage(context.Background(), "lin-1"); err != nil {
		t.Fatalf("revoke lineage: %v", err)
	}
	for _, name := range []string{"t1", "t2"} {
		token, _ := s.RefreshTokenByHash(context.Background(), hashOf(name))
		if !token.Revoked {
			t.Fatalf("%s must be revoked", name)
		}
	}
	if token, _ := s.RefreshTokenByHash(context.Background(), hashOf("t3")); token.Revoked {
		t.Fatal("other lineage must be untouched")
	}

	if err := s.RevokeAllForAccount(context.Background(), account.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if token, _ := s.RefreshTokenByHash(context.Background(), hashOf("t3")); !token.Revoked {
		t.Fatal("account-wide revocation must cover every lineage")
	}
}

func TestConsumeOneTimeTokenSingleWinner(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	hash := hashOf("token")
	if err := s.InsertVerificationToken(context.Background(), authcore.OneTimeToken{
		SecretHash: hash,
		AccountID:  account.ID,
		ExpiresAt:  time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.ConsumeVerificationToken(context.Background(), hash)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, authcore.ErrTokenConsumed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one consume may win, got %d", wins)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	hash := hashOf("expired")
	_ = s.InsertResetToken(context.Background(), authcore.OneTimeToken{
		SecretHash: hash,
		AccountID:  account.ID,
		ExpiresAt:  time.Now().Add(-time.Minute),
	})

	if _, err := s.ConsumeResetToken(context.Background(), hash); !errors.Is(err, authcore.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed, got %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")
	now := time.Now()

	_ = s.InsertRefreshToken(context.Background(), authcore.RefreshToken{
		SecretHash: hashOf("live"), AccountID: account.ID, LineageID: "lin", ExpiresAt: now.Add(time.Hour),
	})
	_ = s.InsertRefreshToken(context.Background(), authcore.RefreshToken{
		SecretHash: hashOf("dead"), AccountID: account.ID, LineageID: "lin", ExpiresAt: now.Add(-time.Hour),
	})

	if err := s.DeleteExpired(context.Background(), now); err != nil {
		t.Fatalf("delete expired: %v", err)
	}

	if _, err := s.RefreshTokenByHash(context.Background(), hashOf("dead")); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expired row must be gone, got %v", err)
	}
	if _, err := s.RefreshTokenByHash(context.Background(), hashOf("live")); err != nil {
		t.Fatalf("live row must remain: %v", err)
	}
}

func TestUpdateAccountPreservesEmail(t *testing.T) {
	s := New()
	account := seedAccount(t, s, "a@x.com")

	account.Email = "changed@x.com"
	account.FailedLogins = 3
	if err := s.UpdateAccount(context.Background(), account); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, _ := s.AccountByID(context.Background(), account.ID)
	if stored.Email != "a@x.com" {
		t.Fatalf("email must be immutable through UpdateAccount, got %q", stored.Email)
	}
	if stored.FailedLogins != 3 {
		t.Fatalf("failed logins not persisted, got %d", stored.FailedLogins)
	}
}
