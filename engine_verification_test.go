package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calthas/authcore"
)

func TestVerifyEmailFlipsFlag(t *testing.T) {
	env := newTestEngine(t, nil)

	created, err := env.engine.Register(context.Background(), "a@x.com", "pw")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	account, err := env.engine.VerifyEmail(context.Background(), env.notifier.verification["a@x.com"])
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !account.EmailVerified {
		t.Fatal("EmailVerified not set")
	}

	stored, _ := env.store.AccountByID(context.Background(), created.ID)
	if !stored.EmailVerified {
		t.Fatal("verification not persisted")
	}
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	env := newTestEngine(t, nil)
	env.engine.Register(context.Background(), "a@x.com", "pw")
	token := env.notifier.verification["a@x.com"]

	if _, err := env.engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}

	// Second redemption fails exactly like an unknown or expired token.
	_, second := env.engine.VerifyEmail(context.Background(), token)
	_, unknown := env.engine.VerifyEmail(context.Background(), "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if !errors.Is(second, authcore.ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid on reuse, got %v", second)
	}
	if !errors.Is(unknown, authcore.ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid on unknown, got %v", unknown)
	}
	if second.Error() != unknown.Error() {
		t.Fatal("reuse and unknown must be indistinguishable")
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEngine(t, func(cfg *authcore.Config) {
		cfg.EmailVerification.TokenTTL = time.Millisecond
	})
	env.engine.Register(context.Background(), "a@x.com", "pw")
	token := env.notifier.verification["a@x.com"]

	time.Sleep(5 * time.Millisecond)

	if _, err := env.engine.VerifyEmail(context.Background(), token); !errors.Is(err, authcore.ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid for expired token, got %v", err)
	}
}

func TestRequestVerificationResend(t *testing.T) {
	env := newTestEngine(t, nil)
	env.engine.Register(context.Background(), "a@x.com", "pw")
	first := env.notifier.verification["a@x.com"]

	if err := env.engine.RequestVerification(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	second := env.notifier.verification["a@x.com"]
	if second == first {
		t.Fatal("resend must issue a fresh token")
	}

	// Both tokens redeem; each exactly once.
	if _, err := env.engine.VerifyEmail(context.Background(), first); err != nil {
		t.Fatalf("first token redemption failed: %v", err)
	}
}

func TestRequestVerificationRateLimited(t *testing.T) {
	env := newTestEngine(t, func(cfg *authcore.Config) {
		cfg.EmailVerification.ResendLimit = 2
	})
	env.engine.Register(context.Background(), "a@x.com", "pw")

	for i := 0; i < 2; i++ {
		if err := env.engine.RequestVerification(context.Background(), "a@x.com"); err != nil {
			t.Fatalf("resend %d failed: %v", i+1, err)
		}
	}
	if err := env.engine.RequestVerification(context.Background(), "a@x.com"); !errors.Is(err, authcore.ErrVerificationRateLimited) {
		t.Fatalf("expected ErrVerificationRateLimited, got %v", err)
	}

	env.redis.FastForward(5*time.Minute + time.Second)
	if err := env.engine.RequestVerification(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("after window lapse: %v", err)
	}
}

func TestRequestVerificationEdgeCases(t *testing.T) {
	env := newTestEngine(t, nil)
	env.engine.Register(context.Background(), "a@x.com", "pw")

	if err := env.engine.RequestVerification(context.Background(), "ghost@x.com"); !errors.Is(err, authcore.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if _, err := env.engine.VerifyEmail(context.Background(), env.notifier.verification["a@x.com"]); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := env.engine.RequestVerification(context.Background(), "a@x.com"); !errors.Is(err, authcore.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}
