package flows

import (
	"context"
	"errors"
	"time"
)

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	Success       int
	Failure       int
	RateLimited   int
	AccountLocked int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Login       string
	RateLimited string
	Locked      string
}

// LoginErrors carries host sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	RateLimited        error
	AccountLocked      error
	AccountInactive    error
	AccountUnverified  error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	LockoutThreshold        int
	LockoutDuration         time.Duration
	RequireVerifiedForLogin bool
	UpgradeHashOnLogin      bool

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	// Limiter wiring. Check is read-only; Hit records a failed attempt.
	// Both return the host's rate-limited sentinel when over budget and
	// a store-unavailable error on backend failure.
	CheckLoginRate func(ctx context.Context, email, ip string) error
	HitLoginRate   func(ctx context.Context, email, ip string) error
	ResetLoginRate func(ctx context.Context, email, ip string) error

	FindByEmail   func(context.Context, string) (Account, error)
	IsNotFound    func(error) bool
	UpdateAccount func(context.Context, Account) error
	MapStoreError func(error) error

	VerifyPassword func(plaintext, digest string) bool
	DummyVerify    func()
	NeedsRehash    func(string) bool
	HashPassword   func(string) (string, error)

	// IssueTokens mints the access token and a refresh record on a fresh
	// lineage, returning the pair handed to the client.
	IssueTokens func(context.Context, Account) (TokenPair, error)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials and issues a token pair.
//
// Ordering is deliberate: the rate limiter runs before any argon2 work so
// an attacker over budget costs nothing, and a missing account burns a
// dummy verification so the response is indistinguishable from a wrong
// password in both shape and timing.
func RunLogin(ctx context.Context, email, plainPassword string, deps LoginDeps) (TokenPair, error) {
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
	if deps.FindByEmail == nil || deps.VerifyPassword == nil || deps.IssueTokens == nil {
		return TokenPair{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", err, func() map[string]string {
					return map[string]string{"email": email}
				})
			}
			return TokenPair{}, err
		}
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound == nil || !deps.IsNotFound(err) {
			mapped := err
			if deps.MapStoreError != nil {
				mapped = deps.MapStoreError(err)
			}
			return TokenPair{}, mapped
		}
		// Unknown account: burn a hash verification and record the
		// attempt exactly as a password mismatch would.
		if deps.DummyVerify != nil {
			deps.DummyVerify()
		}
		return TokenPair{}, deps.failLogin(ctx, email, ip, Account{}, "account_not_found")
	}

	if until := account.LockedUntil; until != nil && until.After(deps.Now()) {
		deps.MetricInc(deps.Metrics.AccountLocked)
		deps.EmitAudit(ctx, deps.Events.Locked, false, account.ID, "", deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"email": email, "locked_until": until.UTC().Format(time.RFC3339)}
		})
		return TokenPair{}, deps.Errors.AccountLocked
	}

	if !deps.VerifyPassword(plainPassword, account.PasswordHash) {
		return TokenPair{}, deps.failLogin(ctx, email, ip, account, "password_mismatch")
	}

	if !account.Active {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Login, false, account.ID, "", deps.Errors.AccountInactive, func() map[string]string {
			return map[string]string{"email": email, "reason": "account_inactive"}
		})
		return TokenPair{}, deps.Errors.AccountInactive
	}
	if deps.RequireVerifiedForLogin && !account.EmailVerified {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Login, false, account.ID, "", deps.Errors.AccountUnverified, func() map[string]string {
			return map[string]string{"email": email, "reason": "email_unverified"}
		})
		return TokenPair{}, deps.Errors.AccountUnverified
	}

	if deps.UpgradeHashOnLogin && deps.NeedsRehash != nil && deps.NeedsRehash(account.PasswordHash) {
		if upgraded, err := deps.HashPassword(plainPassword); err == nil {
			account.PasswordHash = upgraded
		} else {
			deps.Warn("authcore: password hash upgrade generation failed")
		}
	}
	plainPassword = ""

	// Successful login clears both abuse layers: the ephemeral window
	// counter and the durable failure state on the account row.
	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("authcore: login rate counter reset failed")
		}
	}
	if account.FailedLogins != 0 || account.LockedUntil != nil {
		account.FailedLogins = 0
		account.LockedUntil = nil
	}
	if deps.UpdateAccount != nil {
		if err := deps.UpdateAccount(ctx, account); err != nil {
			deps.Warn("authcore: post-login account update failed")
		}
	}

	pair, err := deps.IssueTokens(ctx, account)
	if err != nil {
		return TokenPair{}, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Login, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email, "role": account.Role}
	})

	return pair, nil
}

// failLogin records a failed attempt against both abuse layers and returns
// the uniform invalid-credentials error. account may be the zero value on
// the not-found path.
func (deps *LoginDeps) failLogin(ctx context.Context, email, ip string, account Account, reason string) error {
	if deps.HitLoginRate != nil {
		if err := deps.HitLoginRate(ctx, email, ip); err != nil && !errors.Is(err, deps.Errors.RateLimited) {
			deps.Warn("authcore: login rate counter update failed")
		}
	}

	if account.ID != "" && deps.UpdateAccount != nil && deps.LockoutThreshold > 0 {
		account.FailedLogins++
		if account.FailedLogins >= deps.LockoutThreshold {
			until := deps.Now().Add(deps.LockoutDuration)
			account.LockedUntil = &until
			deps.MetricInc(deps.Metrics.AccountLocked)
			deps.EmitAudit(ctx, deps.Events.Locked, false, account.ID, "", deps.Errors.AccountLocked, func() map[string]string {
				return map[string]string{
					"email":        email,
					"failed_count": itoa(account.FailedLogins),
				}
			})
		}
		if err := deps.UpdateAccount(ctx, account); err != nil {
			deps.Warn("authcore: failed-attempt counter update failed")
		}
	}

	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Login, false, account.ID, "", deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "ip": ip, "reason": reason}
	})

	return deps.Errors.InvalidCredentials
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
