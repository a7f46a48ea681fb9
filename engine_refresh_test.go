package authcore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calthas/authcore"
	"github.com/calthas/authcore/internal"
)

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEngine(t, nil)
	_, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	next, err := env.engine.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the secret")
	}
	if next.AccessToken == "" {
		t.Fatal("access token missing")
	}

	// The chain continues from the new token.
	if _, err := env.engine.Refresh(context.Background(), next.RefreshToken); err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}
}

func TestRefreshReuseRevokesLineage(t *testing.T) {
	env := newTestEngine(t, nil)
	_, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	// Attacker steals the token and rotates first.
	stolen, err := env.engine.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// Victim replays the original token: reuse detected.
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, authcore.ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	// The attacker's fresh token died with the lineage.
	if _, err := env.engine.Refresh(context.Background(), stolen.RefreshToken); !errors.Is(err, authcore.ErrRefreshReuse) {
		t.Fatalf("lineage tail must be revoked, got %v", err)
	}

	if got := env.engine.MetricsSnapshot().Counters[authcore.MetricRefreshReuseDetected]; got == 0 {
		t.Fatal("reuse metric not recorded")
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	_, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.engine.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, authcore.ErrRefreshReuse) {
			t.Fatalf("loser got unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one racer must win, got %d", wins)
	}
}

func TestRefreshMalformedAndUnknownTokens(t *testing.T) {
	env := newTestEngine(t, nil)
	env.registerAndLogin(t, "a@x.com", "correct-horse")

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "!!not-base64url!!"},
		{"wrong length", "c2hvcnQ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.Refresh(context.Background(), tc.token); !errors.Is(err, authcore.ErrRefreshInvalid) {
				t.Fatalf("expected ErrRefreshInvalid, got %v", err)
			}
		})
	}

	// Well-formed but never issued.
	secret, err := internal.NewSecret()
	if err != nil {
		t.Fatalf("secret generation failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), internal.EncodeSecret(secret)); !errors.Is(err, authcore.ErrRefreshInvalid) {
		t.Fatalf("unknown token: expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEngine(t, func(cfg *authcore.Config) {
		cfg.JWT.AccessTTL = time.Second
		cfg.Refresh.TTL = 2 * time.Second
	})
	_, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	time.Sleep(2100 * time.Millisecond)

	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, authcore.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for expired token, got %v", err)
	}
}

func TestRefreshInactiveAccountRevokesLineage(t *testing.T) {
	env := newTestEngine(t, nil)
	account, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	stored, _ := env.store.AccountByID(context.Background(), account.ID)
	stored.Active = false
	if err := env.store.UpdateAccount(context.Background(), stored); err != nil {
		t.Fatalf("store update failed: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, authcore.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	// The lineage is gone: reactivating does not revive old tokens.
	stored.Active = true
	_ = env.store.UpdateAccount(context.Background(), stored)
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("revoked lineage must not refresh")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEngine(t, nil)
	_, pair := env.registerAndLogin(t, "a@x.com", "correct-horse")

	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	// Second logout of the same token, a malformed token, and an unknown
	// token all succeed.
	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("repeat logout failed: %v", err)
	}
	if err := env.engine.Logout(context.Background(), "garbage"); err != nil {
		t.Fatalf("malformed-token logout failed: %v", err)
	}

	// The token is dead for refresh purposes.
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("refresh must fail after logout")
	}
}

func TestLogoutEverywhereRevokesWholeLineage(t *testing.T) {
	env := newTestEngine(t, nil)
	_, first := env.registerAndLogin(t, "a@x.com", "correct-horse")

	// Second device, second lineage.
	second, err := env.engine.Login(context.Background(), "a@x.com", "correct-horse")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	// Rotate the first lineage so it has a revoked head and a live tail.
	rotated, err := env.engine.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("rotation failed: %v", err)
	}

	// LogoutEverywhere with the already-revoked head still kills the
	// live tail; plain Logout would have been a no-op here.
	if err := env.engine.LogoutEverywhere(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("logout everywhere failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), rotated.RefreshToken); err == nil {
		t.Fatal("lineage tail must be revoked")
	}

	// Other lineages of the same account survive.
	if _, err := env.engine.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Fatalf("second lineage should survive, got %v", err)
	}
}
