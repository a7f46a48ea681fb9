package authcore

import (
	"context"

	"github.com/calthas/authcore/internal/flows"
	"github.com/calthas/authcore/internal/rate"
)

const loginRateAction = "login"

func (e *Engine) loginPolicy() rate.Policy {
	return rate.Policy{Limit: e.config.Login.MaxAttempts, Window: e.config.Login.Window}
}

// loginRateKeys returns the counter keys for one attempt: always the
// email, plus the client IP when per-IP throttling is on and an IP is in
// context.
func (e *Engine) loginRateKeys(email, ip string) []string {
	keys := []string{email}
	if e.config.Login.PerIPThrottle && ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	return keys
}

// Login verifies the credentials and returns a token pair on a fresh
// refresh lineage. Unknown emails and wrong passwords are
// indistinguishable; both cost one attempt against the window counters
// and the durable failure count.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (TokenPair, error) {
	if e == nil || e.store == nil || e.passwordHash == nil || e.jwtManager == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	deps := flows.LoginDeps{
		LockoutThreshold:        e.config.Login.LockoutThreshold,
		LockoutDuration:         e.config.Login.LockoutDuration,
		RequireVerifiedForLogin: e.config.Login.RequireVerified,
		UpgradeHashOnLogin:      e.config.Password.UpgradeOnLogin,

		ClientIPFromContext: clientIPFromContext,

		FindByEmail:   e.flowFindAccountByEmail,
		IsNotFound:    isNotFound,
		UpdateAccount: e.flowUpdateAccount,
		MapStoreError: e.mapStoreError,

		VerifyPassword: e.passwordHash.Verify,
		DummyVerify:    e.passwordHash.DummyVerify,
		NeedsRehash:    e.passwordHash.NeedsRehash,
		HashPassword:   e.passwordHash.Hash,

		IssueTokens: e.issueTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      engineWarn,

		Metrics: flows.LoginMetrics{
			Success:       int(MetricLoginSuccess),
			Failure:       int(MetricLoginFailure),
			RateLimited:   int(MetricLoginRateLimited),
			AccountLocked: int(MetricAccountLocked),
		},
		Events: flows.LoginEvents{
			Login:       auditEventLogin,
			RateLimited: auditEventLoginRateLimited,
			Locked:      auditEventAccountLocked,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			RateLimited:        ErrLoginRateLimited,
			AccountLocked:      ErrAccountLocked,
			AccountInactive:    ErrAccountInactive,
			AccountUnverified:  ErrAccountUnverified,
		},
	}

	if e.rateLimiter != nil && e.config.Login.MaxAttempts > 0 {
		policy := e.loginPolicy()
		deps.CheckLoginRate = func(ctx context.Context, email, ip string) error {
			for _, key := range e.loginRateKeys(email, ip) {
				if err := e.rateLimiter.Check(ctx, loginRateAction, key, policy); err != nil {
					return mapRateError(err, ErrLoginRateLimited)
				}
			}
			return nil
		}
		deps.HitLoginRate = func(ctx context.Context, email, ip string) error {
			for _, key := range e.loginRateKeys(email, ip) {
				if _, err := e.rateLimiter.Hit(ctx, loginRateAction, key, policy); err != nil {
					return mapRateError(err, ErrLoginRateLimited)
				}
			}
			return nil
		}
		deps.ResetLoginRate = func(ctx context.Context, email, ip string) error {
			return e.rateLimiter.Reset(ctx, loginRateAction, e.loginRateKeys(email, ip)...)
		}
	}

	pair, err := flows.RunLogin(ctx, email, plainPassword, deps)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair(pair), nil
}
