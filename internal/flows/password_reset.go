package flows

import (
	"context"
	"errors"
	"time"
)

// ResetMetrics carries metric IDs used by the password reset flows.
type ResetMetrics struct {
	Requested   int
	Completed   int
	Failed      int
	RateLimited int
}

// ResetEvents carries audit event names used by the password reset flows.
type ResetEvents struct {
	Requested string
	Completed string
}

// ResetErrors carries host sentinel errors used by the password reset flows.
type ResetErrors struct {
	EngineNotReady error
	Validation     error
	RateLimited    error
	TokenInvalid   error
}

// ResetDeps captures password reset flow dependencies.
type ResetDeps struct {
	TokenTTL time.Duration

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	// AllowRequest consumes request budget for one key (email or IP).
	AllowRequest func(ctx context.Context, key string) error

	FindByEmail   func(context.Context, string) (Account, error)
	FindAccount   func(context.Context, string) (Account, error)
	IsNotFound    func(error) bool
	UpdateAccount func(context.Context, Account) error
	MapStoreError func(error) error

	NewSecret    func() ([32]byte, error)
	DigestSecret func([32]byte) [32]byte
	EncodeSecret func([32]byte) string
	DecodeToken  func(string) ([32]byte, error)

	InsertToken  func(context.Context, OneTimeRecord) error
	ConsumeToken func(context.Context, [32]byte) (OneTimeRecord, error)

	HashPassword func(string) (string, error)

	// RevokeAllForAccount kills every refresh lineage the account holds.
	// A completed reset assumes the old credential was compromised.
	RevokeAllForAccount func(context.Context, string) error

	Deliver func(ctx context.Context, account Account, token string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics ResetMetrics
	Events  ResetEvents
	Errors  ResetErrors
}

// RunRequestReset issues a password reset token for the email, if an
// account exists. The return value is identical either way: a caller can
// never use this endpoint to probe which emails are registered.
func RunRequestReset(ctx context.Context, email string, deps ResetDeps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.FindByEmail == nil || deps.NewSecret == nil || deps.InsertToken == nil {
		return deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)

	if deps.AllowRequest != nil {
		keys := []string{email}
		if ip := deps.ClientIPFromContext(ctx); ip != "" {
			keys = append(keys, ip)
		}
		for _, key := range keys {
			if err := deps.AllowRequest(ctx, key); err != nil {
				if errors.Is(err, deps.Errors.RateLimited) {
					deps.MetricInc(deps.Metrics.RateLimited)
					deps.EmitAudit(ctx, deps.Events.Requested, false, "", "", err, func() map[string]string {
						return map[string]string{"key": key}
					})
				}
				return err
			}
		}
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			// Unknown email: burn the same secret generation and digest
			// work as the real path, record the probe, and succeed. The
			// store insert and delivery are not mirrored, so a caller
			// timing the network round trip very precisely could still
			// tell the paths apart; the email rate limit bounds how many
			// such measurements one probe gets.
			if secret, genErr := deps.NewSecret(); genErr != nil {
				deps.Warn("authcore: dummy reset secret generation failed")
			} else if deps.DigestSecret != nil {
				_ = deps.DigestSecret(secret)
			}
			deps.EmitAudit(ctx, deps.Events.Requested, true, "", "", nil, func() map[string]string {
				return map[string]string{"email": email, "outcome": "no_account"}
			})
			return nil
		}
		if deps.MapStoreError != nil {
			return deps.MapStoreError(err)
		}
		return err
	}

	secret, err := deps.NewSecret()
	if err != nil {
		return err
	}

	now := deps.Now()
	record := OneTimeRecord{
		SecretHash: deps.DigestSecret(secret),
		AccountID:  account.ID,
		ExpiresAt:  now.Add(deps.TokenTTL),
		CreatedAt:  now,
	}
	if err := deps.InsertToken(ctx, record); err != nil {
		if deps.MapStoreError != nil {
			return deps.MapStoreError(err)
		}
		return err
	}

	if deps.Deliver != nil {
		if err := deps.Deliver(ctx, account, deps.EncodeSecret(secret)); err != nil {
			// Delivery is best effort from the caller's view; the
			// request still succeeds so the response stays uniform.
			deps.Warn("authcore: reset token delivery failed")
		}
	}

	deps.MetricInc(deps.Metrics.Requested)
	deps.EmitAudit(ctx, deps.Events.Requested, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// RunResetPassword redeems a reset token, installs the new password, and
// revokes every outstanding refresh lineage for the account.
func RunResetPassword(ctx context.Context, token, newPassword string, deps ResetDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.ConsumeToken == nil || deps.FindAccount == nil || deps.UpdateAccount == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	if newPassword == "" {
		return deps.Errors.Validation
	}

	hash, err := deps.DecodeToken(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failed)
		return deps.Errors.TokenInvalid
	}

	record, err := deps.ConsumeToken(ctx, hash)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failed)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", "", deps.Errors.TokenInvalid, nil)
		return deps.Errors.TokenInvalid
	}

	account, err := deps.FindAccount(ctx, record.AccountID)
	if err != nil {
		if deps.MapStoreError != nil {
			return deps.MapStoreError(err)
		}
		return err
	}

	digest, err := deps.HashPassword(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	account.PasswordHash = digest
	// A proven mailbox owner gets the durable abuse state cleared along
	// with the credential change.
	account.FailedLogins = 0
	account.LockedUntil = nil
	if err := deps.UpdateAccount(ctx, account); err != nil {
		if deps.MapStoreError != nil {
			return deps.MapStoreError(err)
		}
		return err
	}

	if deps.RevokeAllForAccount != nil {
		if err := deps.RevokeAllForAccount(ctx, account.ID); err != nil {
			deps.Warn("authcore: refresh revocation after password reset failed")
		}
	}

	deps.MetricInc(deps.Metrics.Completed)
	deps.EmitAudit(ctx, deps.Events.Completed, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": account.Email}
	})
	return nil
}
