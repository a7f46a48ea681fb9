package flows

import "context"

// LogoutMetrics carries metric IDs used by the logout flow.
type LogoutMetrics struct {
	Success int
}

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Logout string
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	DecodeToken func(string) ([32]byte, error)
	FindByHash  func(context.Context, [32]byte) (RefreshRecord, error)
	IsNotFound  func(error) bool

	// Revoke marks a single record revoked; RevokeLineage walks the
	// whole chain. EverywhereLogout picks the latter.
	Revoke        func(context.Context, [32]byte) error
	RevokeLineage func(context.Context, string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics LogoutMetrics
	Events  LogoutEvents
}

// RunLogout revokes the presented refresh token. Idempotent by contract:
// unknown, malformed, and already-revoked tokens all succeed silently, so
// a client can always converge on logged-out.
//
// everywhere extends revocation to the full lineage, covering tokens the
// client may have leaked across devices.
func RunLogout(ctx context.Context, refreshToken string, everywhere bool, deps LogoutDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}

	hash, err := deps.DecodeToken(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Logout, true, "", "", nil, func() map[string]string {
			return map[string]string{"outcome": "malformed_token"}
		})
		return nil
	}

	record, err := deps.FindByHash(ctx, hash)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.Success)
			deps.EmitAudit(ctx, deps.Events.Logout, true, "", "", nil, func() map[string]string {
				return map[string]string{"outcome": "unknown_token"}
			})
			return nil
		}
		return err
	}

	if everywhere {
		err = deps.RevokeLineage(ctx, record.LineageID)
	} else if !record.Revoked {
		err = deps.Revoke(ctx, hash)
	}
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Logout, true, record.AccountID, record.LineageID, nil, func() map[string]string {
		if everywhere {
			return map[string]string{"outcome": "lineage_revoked"}
		}
		return map[string]string{"outcome": "token_revoked"}
	})
	return nil
}
