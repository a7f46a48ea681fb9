package authcore

import (
	"context"

	"github.com/calthas/authcore/internal"
	"github.com/calthas/authcore/internal/flows"
)

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		RefreshTTL:              e.config.Refresh.TTL,
		RequireVerifiedForLogin: e.config.Login.RequireVerified,

		DecodeToken:  internal.DigestToken,
		NewSecret:    internal.NewSecret,
		DigestSecret: internal.DigestSecret,
		EncodeSecret: internal.EncodeSecret,

		FindByHash: func(ctx context.Context, hash [32]byte) (flows.RefreshRecord, error) {
			record, err := e.store.RefreshTokenByHash(ctx, hash)
			if err != nil {
				return flows.RefreshRecord{}, err
			}
			return flows.RefreshRecord(record), nil
		},
		IsNotFound:  isNotFound,
		FindAccount: e.flowFindAccountByID,

		Rotate: func(ctx context.Context, oldHash [32]byte, next flows.RefreshRecord) error {
			return e.store.RotateRefreshToken(ctx, oldHash, RefreshToken(next))
		},
		IsConflict: isRotateConflict,

		RevokeLineage: e.store.RevokeLineage,

		IssueAccess: func(a flows.Account) (string, int64, error) {
			access, err := e.jwtManager.CreateAccess(a.ID, a.Role)
			if err != nil {
				return "", 0, err
			}
			return access, int64(e.jwtManager.AccessTTL().Seconds()), nil
		},

		Warn: engineWarn,
	}
}

// Refresh rotates the presented refresh token and returns a new pair.
// Presenting a secret that has already been rotated away is treated as
// theft: the whole lineage is revoked and ErrRefreshReuse is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	result := flows.RunRefresh(ctx, refreshToken, e.refreshDeps())

	switch result.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefresh, true, result.AccountID, result.LineageID, nil, nil)
		return TokenPair(result.Pair), nil

	case flows.RefreshFailureReuse, flows.RefreshFailureRotateConflict:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricLineageRevoked)
		e.emitAudit(ctx, auditEventRefreshReuse, false, result.AccountID, result.LineageID, ErrRefreshReuse, nil)
		return TokenPair{}, ErrRefreshReuse

	case flows.RefreshFailureAccountInactive:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricLineageRevoked)
		e.emitAudit(ctx, auditEventRefresh, false, result.AccountID, result.LineageID, ErrAccountInactive, nil)
		return TokenPair{}, ErrAccountInactive

	case flows.RefreshFailureUnverified:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, false, result.AccountID, result.LineageID, ErrAccountUnverified, nil)
		return TokenPair{}, ErrAccountUnverified

	case flows.RefreshFailureStore, flows.RefreshFailureNextSecret, flows.RefreshFailureIssueAccess:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, false, result.AccountID, result.LineageID, result.Err, nil)
		return TokenPair{}, e.mapStoreError(result.Err)

	default:
		// Decode, not-found, expired, and orphaned-account failures all
		// collapse into one undifferentiated refusal.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, false, result.AccountID, result.LineageID, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"kind": refreshFailureName(result.Failure)}
		})
		return TokenPair{}, ErrRefreshInvalid
	}
}

func refreshFailureName(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureDecode:
		return "decode"
	case flows.RefreshFailureNotFound:
		return "not_found"
	case flows.RefreshFailureExpired:
		return "expired"
	case flows.RefreshFailureAccountGone:
		return "account_gone"
	}
	return "other"
}

// Logout revokes the presented refresh token. Idempotent: unknown and
// malformed tokens succeed, so clients can always converge on logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	return e.logout(ctx, refreshToken, false)
}

// LogoutEverywhere revokes the token's entire lineage.
func (e *Engine) LogoutEverywhere(ctx context.Context, refreshToken string) error {
	return e.logout(ctx, refreshToken, true)
}

func (e *Engine) logout(ctx context.Context, refreshToken string, everywhere bool) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	deps := flows.LogoutDeps{
		DecodeToken: internal.DigestToken,
		FindByHash: func(ctx context.Context, hash [32]byte) (flows.RefreshRecord, error) {
			record, err := e.store.RefreshTokenByHash(ctx, hash)
			if err != nil {
				return flows.RefreshRecord{}, err
			}
			return flows.RefreshRecord(record), nil
		},
		IsNotFound:    isNotFound,
		Revoke:        e.store.RevokeRefreshToken,
		RevokeLineage: e.store.RevokeLineage,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      engineWarn,

		Metrics: flows.LogoutMetrics{Success: int(MetricLogout)},
		Events:  flows.LogoutEvents{Logout: auditEventLogout},
	}

	if err := flows.RunLogout(ctx, refreshToken, everywhere, deps); err != nil {
		return e.mapStoreError(err)
	}
	return nil
}
