package authcore

import (
	"context"

	"github.com/calthas/authcore/internal"
	"github.com/calthas/authcore/internal/flows"
	"github.com/calthas/authcore/internal/rate"
)

const verificationRateAction = "verify_resend"

func (e *Engine) verificationDeps() flows.VerificationDeps {
	deps := flows.VerificationDeps{
		TokenTTL: e.config.EmailVerification.TokenTTL,

		FindByEmail:   e.flowFindAccountByEmail,
		FindAccount:   e.flowFindAccountByID,
		IsNotFound:    isNotFound,
		UpdateAccount: e.flowUpdateAccount,
		MapStoreError: e.mapStoreError,

		NewSecret:    internal.NewSecret,
		DigestSecret: internal.DigestSecret,
		EncodeSecret: internal.EncodeSecret,
		DecodeToken:  internal.DigestToken,

		InsertToken: func(ctx context.Context, record flows.OneTimeRecord) error {
			return e.store.InsertVerificationToken(ctx, OneTimeToken(record))
		},
		ConsumeToken: func(ctx context.Context, hash [32]byte) (flows.OneTimeRecord, error) {
			token, err := e.store.ConsumeVerificationToken(ctx, hash)
			if err != nil {
				return flows.OneTimeRecord{}, err
			}
			return flows.OneTimeRecord(token), nil
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      engineWarn,

		Metrics: flows.VerificationMetrics{
			Issued:      int(MetricVerificationIssued),
			Verified:    int(MetricVerificationSuccess),
			Failed:      int(MetricVerificationFailure),
			RateLimited: int(MetricVerificationRateLimited),
		},
		Events: flows.VerificationEvents{
			Requested: auditEventVerificationRequest,
			Verified:  auditEventVerificationComplete,
		},
		Errors: flows.VerificationErrors{
			EngineNotReady:  ErrEngineNotReady,
			AccountNotFound: ErrAccountNotFound,
			AlreadyVerified: ErrAlreadyVerified,
			RateLimited:     ErrVerificationRateLimited,
			TokenInvalid:    ErrVerificationInvalid,
		},
	}

	if e.notifier != nil {
		deps.Deliver = func(ctx context.Context, a flows.Account, token string) error {
			return e.notifier.SendVerification(ctx, fromFlowAccount(a), token)
		}
	}

	if e.rateLimiter != nil && e.config.EmailVerification.ResendLimit > 0 {
		policy := rate.Policy{
			Limit:  e.config.EmailVerification.ResendLimit,
			Window: e.config.EmailVerification.ResendWindow,
		}
		deps.AllowResend = func(ctx context.Context, email string) error {
			return mapRateError(
				e.rateLimiter.Allow(ctx, verificationRateAction, email, policy),
				ErrVerificationRateLimited,
			)
		}
	}

	return deps
}

// RequestVerification issues a fresh verification token for an
// unverified account and delivers it through the notifier. Resends are
// budgeted per email.
func (e *Engine) RequestVerification(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrValidation
	}
	return flows.RunRequestVerification(ctx, email, e.verificationDeps())
}

// VerifyEmail redeems a verification token. Single use: a second
// redemption of the same token fails with ErrVerificationInvalid exactly
// like an expired or unknown one.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (Account, error) {
	if e == nil || e.store == nil {
		return Account{}, ErrEngineNotReady
	}

	account, err := flows.RunVerifyEmail(ctx, token, e.verificationDeps())
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(account), nil
}
