package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/calthas/authcore/internal"
	"github.com/calthas/authcore/internal/audit"
	"github.com/calthas/authcore/internal/flows"
	"github.com/calthas/authcore/internal/rate"
	"github.com/calthas/authcore/jwt"
	"github.com/calthas/authcore/password"
)

// Engine is the authentication core. Build one with the Builder and treat
// it as immutable; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	store        Store
	notifier     Notifier
	rateLimiter  *rate.Limiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were shed under DropIfFull.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the engine's counter set for the export packages.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// ParseAccess validates an access token and returns its claims. Pure JWT
// validation: no store or Redis round trip.
func (e *Engine) ParseAccess(tokenStr string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.ParseAccess(tokenStr)
}

// RequireRole validates an access token and checks that its role ranks at
// least as high as required in the built-in ordering (user < admin <
// superadmin). Unknown roles never satisfy any requirement.
func (e *Engine) RequireRole(tokenStr, required string) (*jwt.AccessClaims, error) {
	claims, err := e.ParseAccess(tokenStr)
	if err != nil {
		return nil, err
	}

	need, ok := roleRank[required]
	if !ok {
		return nil, fmt.Errorf("%w: unknown required role %q", ErrValidation, required)
	}
	if roleRank[claims.Role] < need {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// DeleteExpired prunes expired refresh and one-time token rows. Intended
// for a periodic housekeeping goroutine in the host.
func (e *Engine) DeleteExpired(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteExpired(ctx, time.Now()); err != nil {
		return e.mapStoreError(err)
	}
	return nil
}

// mapStoreError converts adapter failures into the public taxonomy.
// Classification sentinels pass through untouched.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrRotateConflict),
		errors.Is(err, ErrTokenConsumed):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func isRotateConflict(err error) bool {
	return errors.Is(err, ErrRotateConflict)
}

// mapRateError translates limiter failures onto the operation's sentinel.
func mapRateError(err, limited error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", ErrRateLimitUnavailable, err)
	}
}

// issueTokens mints an access token and a refresh record on a fresh
// lineage. Every login starts a new lineage; rotations stay inside it.
func (e *Engine) issueTokens(ctx context.Context, account flows.Account) (flows.TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(account.ID, account.Role)
	if err != nil {
		return flows.TokenPair{}, err
	}

	secret, err := internal.NewSecret()
	if err != nil {
		return flows.TokenPair{}, err
	}

	now := time.Now()
	record := RefreshToken{
		SecretHash: internal.DigestSecret(secret),
		AccountID:  account.ID,
		LineageID:  uuid.NewString(),
		ExpiresAt:  now.Add(e.config.Refresh.TTL),
		DeviceInfo: deviceInfoFromContext(ctx),
		CreatedAt:  now,
	}
	if err := e.store.InsertRefreshToken(ctx, record); err != nil {
		return flows.TokenPair{}, e.mapStoreError(err)
	}

	return flows.TokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeSecret(secret),
		ExpiresIn:    int64(e.jwtManager.AccessTTL() / time.Second),
	}, nil
}

// Conversions between the public types and the flow-local mirrors.

func toFlowAccount(a Account) flows.Account {
	return flows.Account{
		ID:            a.ID,
		Email:         a.Email,
		PasswordHash:  a.PasswordHash,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		FailedLogins:  a.FailedLogins,
		LockedUntil:   a.LockedUntil,
	}
}

func fromFlowAccount(a flows.Account) Account {
	return Account{
		ID:            a.ID,
		Email:         a.Email,
		PasswordHash:  a.PasswordHash,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		FailedLogins:  a.FailedLogins,
		LockedUntil:   a.LockedUntil,
	}
}

// flowFindAccountByEmail adapts Store.AccountByEmail to the flow signature,
// preserving timestamps the flow model does not carry.
func (e *Engine) flowFindAccountByEmail(ctx context.Context, email string) (flows.Account, error) {
	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		return flows.Account{}, err
	}
	return toFlowAccount(account), nil
}

func (e *Engine) flowFindAccountByID(ctx context.Context, id string) (flows.Account, error) {
	account, err := e.store.AccountByID(ctx, id)
	if err != nil {
		return flows.Account{}, err
	}
	return toFlowAccount(account), nil
}

// flowUpdateAccount merges flow-visible fields back onto the stored row so
// timestamps and future columns survive the round trip.
func (e *Engine) flowUpdateAccount(ctx context.Context, a flows.Account) error {
	stored, err := e.store.AccountByID(ctx, a.ID)
	if err != nil {
		return err
	}
	stored.PasswordHash = a.PasswordHash
	stored.Role = a.Role
	stored.Active = a.Active
	stored.EmailVerified = a.EmailVerified
	stored.FailedLogins = a.FailedLogins
	stored.LockedUntil = a.LockedUntil
	return e.store.UpdateAccount(ctx, stored)
}

func engineWarn(msg string, args ...any) {
	log.Println(append([]any{msg}, args...)...)
}
