package authcore

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/calthas/authcore/internal/flows"
)

// Register creates a new account with the configured default role and,
// when email verification is enabled, issues and delivers a verification
// token. The email is case-normalized before storage and lookup.
func (e *Engine) Register(ctx context.Context, email, plainPassword string) (Account, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return Account{}, ErrEngineNotReady
	}

	deps := flows.RegisterDeps{
		DefaultRole:         e.config.DefaultRole,
		VerificationEnabled: e.config.EmailVerification.Enabled,

		NewAccountID: func() (string, error) { return ulid.Make().String(), nil },
		HashPassword: e.passwordHash.Hash,
		CreateAccount: func(ctx context.Context, a flows.Account) (flows.Account, error) {
			created, err := e.store.CreateAccount(ctx, fromFlowAccount(a))
			if err != nil {
				return flows.Account{}, err
			}
			return toFlowAccount(created), nil
		},
		IsDuplicate:   isDuplicate,
		MapStoreError: e.mapStoreError,
		IssueVerification: func(ctx context.Context, a flows.Account) error {
			return flows.IssueVerification(ctx, a, e.verificationDeps())
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      engineWarn,

		Metrics: flows.RegisterMetrics{
			Success:   int(MetricRegisterSuccess),
			Duplicate: int(MetricRegisterDuplicate),
		},
		Events: flows.RegisterEvents{
			Register: auditEventRegister,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			DuplicateEmail: ErrDuplicateEmail,
		},
	}

	created, err := flows.RunRegister(ctx, email, plainPassword, deps)
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(created), nil
}
