package flows

import (
	"context"
	"strings"
	"time"
)

// RegisterMetrics carries metric IDs used by the register flow.
type RegisterMetrics struct {
	Success   int
	Duplicate int
}

// RegisterEvents carries audit event names used by the register flow.
type RegisterEvents struct {
	Register string
}

// RegisterErrors carries host sentinel errors used by the register flow.
type RegisterErrors struct {
	EngineNotReady error
	Validation     error
	DuplicateEmail error
}

// RegisterDeps captures register flow dependencies.
type RegisterDeps struct {
	DefaultRole         string
	VerificationEnabled bool

	Now           func() time.Time
	NewAccountID  func() (string, error)
	HashPassword  func(string) (string, error)
	CreateAccount func(context.Context, Account) (Account, error)
	IsDuplicate   func(error) bool
	MapStoreError func(error) error

	// IssueVerification creates and dispatches the verification token.
	// Its failure is logged, never surfaced: the account already exists
	// and the client can request a resend.
	IssueVerification func(context.Context, Account) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// NormalizeEmail is the single case-normalization rule applied to every
// email entering the engine.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunRegister creates a new account and emits its verification token.
func RunRegister(ctx context.Context, email, plainPassword string, deps RegisterDeps) (Account, error) {
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
	if deps.HashPassword == nil || deps.CreateAccount == nil || deps.NewAccountID == nil {
		return Account{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") || plainPassword == "" {
		deps.EmitAudit(ctx, deps.Events.Register, false, "", "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "malformed_input"}
		})
		return Account{}, deps.Errors.Validation
	}

	digest, err := deps.HashPassword(plainPassword)
	if err != nil {
		return Account{}, err
	}
	plainPassword = ""

	id, err := deps.NewAccountID()
	if err != nil {
		return Account{}, err
	}

	account := Account{
		ID:           id,
		Email:        email,
		PasswordHash: digest,
		Role:         deps.DefaultRole,
		// Accounts are usable before verification; deployments wanting a
		// stricter gate set RequireVerifiedForLogin on the login flow.
		Active:        true,
		EmailVerified: false,
	}

	created, err := deps.CreateAccount(ctx, account)
	if err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.Duplicate)
			deps.EmitAudit(ctx, deps.Events.Register, false, "", "", deps.Errors.DuplicateEmail, func() map[string]string {
				return map[string]string{"email": email, "reason": "duplicate_email"}
			})
			return Account{}, deps.Errors.DuplicateEmail
		}
		mapped := err
		if deps.MapStoreError != nil {
			mapped = deps.MapStoreError(err)
		}
		deps.EmitAudit(ctx, deps.Events.Register, false, "", "", mapped, nil)
		return Account{}, mapped
	}

	if deps.VerificationEnabled && deps.IssueVerification != nil {
		if err := deps.IssueVerification(ctx, created); err != nil {
			deps.Warn("authcore: verification token issuance failed after registration")
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Register, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email, "role": created.Role}
	})

	return created, nil
}
