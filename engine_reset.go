package authcore

import (
	"context"

	"github.com/calthas/authcore/internal"
	"github.com/calthas/authcore/internal/flows"
	"github.com/calthas/authcore/internal/rate"
)

const resetRateAction = "reset_request"

func (e *Engine) resetDeps() flows.ResetDeps {
	deps := flows.ResetDeps{
		TokenTTL: e.config.PasswordReset.TokenTTL,

		ClientIPFromContext: clientIPFromContext,

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
			return e.store.InsertResetToken(ctx, OneTimeToken(record))
		},
		ConsumeToken: func(ctx context.Context, hash [32]byte) (flows.OneTimeRecord, error) {
			token, err := e.store.ConsumeResetToken(ctx, hash)
			if err != nil {
				return flows.OneTimeRecord{}, err
			}
			return flows.OneTimeRecord(token), nil
		},

		HashPassword:        e.passwordHash.Hash,
		RevokeAllForAccount: e.store.RevokeAllForAccount,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      engineWarn,

		Metrics: flows.ResetMetrics{
			Requested:   int(MetricResetRequested),
			Completed:   int(MetricResetSuccess),
			Failed:      int(MetricResetFailure),
			RateLimited: int(MetricResetRateLimited),
		},
		Events: flows.ResetEvents{
			Requested: auditEventResetRequest,
			Completed: auditEventResetComplete,
		},
		Errors: flows.ResetErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			RateLimited:    ErrResetRateLimited,
			TokenInvalid:   ErrResetInvalid,
		},
	}

	if e.notifier != nil {
		deps.Deliver = func(ctx context.Context, a flows.Account, token string) error {
			return e.notifier.SendPasswordReset(ctx, fromFlowAccount(a), token)
		}
	}

	if e.rateLimiter != nil && e.config.PasswordReset.RequestLimit > 0 {
		policy := rate.Policy{
			Limit:  e.config.PasswordReset.RequestLimit,
			Window: e.config.PasswordReset.RequestWindow,
		}
		deps.AllowRequest = func(ctx context.Context, key string) error {
			return mapRateError(
				e.rateLimiter.Allow(ctx, resetRateAction, key, policy),
				ErrResetRateLimited,
			)
		}
	}

	return deps
}

// RequestPasswordReset issues a reset token for the email if an account
// exists. The outcome is identical either way, so this endpoint cannot be
// used to probe which emails are registered. Requests are budgeted per
// email and, when an IP is in context, per IP.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestReset(ctx, email, e.resetDeps())
}

// ResetPassword redeems a reset token and installs the new password.
// Every outstanding refresh lineage for the account is revoked and the
// durable lockout state is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	return flows.RunResetPassword(ctx, token, newPassword, e.resetDeps())
}
