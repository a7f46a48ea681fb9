package authcore

import "errors"

// Sentinel errors returned by Engine operations. Callers branch with
// errors.Is; message text is not part of the contract.
var (
	ErrEngineNotReady     = errors.New("engine not ready")
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account inactive")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountUnverified  = errors.New("account unverified")
	ErrAlreadyVerified    = errors.New("account already verified")

	ErrLoginRateLimited        = errors.New("login rate limited")
	ErrVerificationRateLimited = errors.New("email verification rate limited")
	ErrResetRateLimited        = errors.New("password reset rate limited")

	// ErrRefreshInvalid covers every refresh refusal that carries no
	// security signal: malformed, unknown, and expired tokens all look
	// identical to the caller.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshReuse is returned when a revoked refresh secret is
	// presented. The whole lineage has already been revoked by the time
	// the caller sees it.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	ErrVerificationInvalid = errors.New("verification token invalid")
	ErrResetInvalid        = errors.New("reset token invalid")

	// ErrStoreUnavailable wraps account store transport failures.
	// Retryable, and never conflated with a credential refusal.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrRateLimitUnavailable wraps rate limit backend failures.
	ErrRateLimitUnavailable = errors.New("rate limit backend unavailable")
)

// Store adapter sentinels. Adapters return these (wrapped or bare) so the
// engine classifies outcomes without knowing the backend.
var (
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by CreateAccount on an email collision.
	ErrDuplicate = errors.New("duplicate")
	// ErrRotateConflict is returned by RotateRefreshToken when the old
	// record was already revoked, meaning a concurrent rotation won.
	ErrRotateConflict = errors.New("rotate conflict")
	// ErrTokenConsumed is returned by Consume* when the token is used,
	// expired, or unknown.
	ErrTokenConsumed = errors.New("token consumed or expired")
)
