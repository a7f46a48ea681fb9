package flows

import (
	"context"
	"errors"
	"time"
)

// VerificationMetrics carries metric IDs used by the verification flows.
type VerificationMetrics struct {
	Issued      int
	Verified    int
	Failed      int
	RateLimited int
}

// VerificationEvents carries audit event names used by the verification flows.
type VerificationEvents struct {
	Requested string
	Verified  string
}

// VerificationErrors carries host sentinel errors used by the verification flows.
type VerificationErrors struct {
	EngineNotReady  error
	AccountNotFound error
	AlreadyVerified error
	RateLimited     error
	TokenInvalid    error
}

// VerificationDeps captures verification flow dependencies.
type VerificationDeps struct {
	TokenTTL time.Duration

	Now func() time.Time

	// AllowResend consumes resend budget for the email key.
	AllowResend func(ctx context.Context, email string) error

	FindByEmail   func(context.Context, string) (Account, error)
	FindAccount   func(context.Context, string) (Account, error)
	IsNotFound    func(error) bool
	UpdateAccount func(context.Context, Account) error
	MapStoreError func(error) error

	NewSecret    func() ([32]byte, error)
	DigestSecret func([32]byte) [32]byte
	EncodeSecret func([32]byte) string
	DecodeToken  func(string) ([32]byte, error)

	InsertToken func(context.Context, OneTimeRecord) error
	// ConsumeToken atomically flips the record to used and returns it.
	// Expired, already-used, and unknown hashes all fail; callers cannot
	// tell which, and neither can clients.
	ConsumeToken func(context.Context, [32]byte) (OneTimeRecord, error)

	// Deliver hands the plaintext token to the notifier. The token never
	// touches the store in this form.
	Deliver func(ctx context.Context, account Account, token string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics VerificationMetrics
	Events  VerificationEvents
	Errors  VerificationErrors
}

// IssueVerification creates and delivers a fresh verification token for the
// account. Shared by registration and the resend path.
func IssueVerification(ctx context.Context, account Account, deps VerificationDeps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewSecret == nil || deps.InsertToken == nil {
		return deps.Errors.EngineNotReady
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
			return err
		}
	}
	return nil
}

// RunRequestVerification handles an explicit resend request.
func RunRequestVerification(ctx context.Context, email string, deps VerificationDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.FindByEmail == nil {
		return deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)

	if deps.AllowResend != nil {
		if err := deps.AllowResend(ctx, email); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.Requested, false, "", "", err, func() map[string]string {
					return map[string]string{"email": email}
				})
			}
			return err
		}
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			return deps.Errors.AccountNotFound
		}
		if deps.MapStoreError != nil {
			return deps.MapStoreError(err)
		}
		return err
	}

	if account.EmailVerified {
		return deps.Errors.AlreadyVerified
	}

	if err := IssueVerification(ctx, account, deps); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Events.Requested, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// RunVerifyEmail redeems a verification token and flips the account's
// verified flag. The consume is the atomic step: two racing redemptions of
// one token admit exactly one winner.
func RunVerifyEmail(ctx context.Context, token string, deps VerificationDeps) (Account, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.ConsumeToken == nil || deps.FindAccount == nil || deps.UpdateAccount == nil {
		return Account{}, deps.Errors.EngineNotReady
	}

	hash, err := deps.DecodeToken(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failed)
		return Account{}, deps.Errors.TokenInvalid
	}

	record, err := deps.ConsumeToken(ctx, hash)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failed)
		deps.EmitAudit(ctx, deps.Events.Verified, false, "", "", deps.Errors.TokenInvalid, nil)
		return Account{}, deps.Errors.TokenInvalid
	}

	account, err := deps.FindAccount(ctx, record.AccountID)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			return Account{}, deps.Errors.AccountNotFound
		}
		if deps.MapStoreError != nil {
			return Account{}, deps.MapStoreError(err)
		}
		return Account{}, err
	}

	if !account.EmailVerified {
		account.EmailVerified = true
		if err := deps.UpdateAccount(ctx, account); err != nil {
			if deps.MapStoreError != nil {
				return Account{}, deps.MapStoreError(err)
			}
			return Account{}, err
		}
	}

	deps.MetricInc(deps.Metrics.Verified)
	deps.EmitAudit(ctx, deps.Events.Verified, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": account.Email}
	})
	return account, nil
}
