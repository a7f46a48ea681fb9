package authcore

import (
	"context"
	"log"
	"time"
)

// Role names recognized by the default role set. Stored as plain strings
// so integrators can extend the set without touching the engine.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// roleRank orders the built-in roles for RequireRole checks. Unknown
// roles rank below user.
var roleRank = map[string]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperadmin: 3,
}

// Account is the durable account record. PasswordHash is a PHC-encoded
// argon2id digest; the engine never stores or logs a plaintext password.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	Active        bool
	EmailVerified bool

	// FailedLogins and LockedUntil are the durable lockout layer,
	// independent of the ephemeral Redis window counters.
	FailedLogins int
	LockedUntil  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is one stored refresh grant. SecretHash is the SHA-256 of
// the opaque secret; the secret itself exists only in the client's hands.
// LineageID ties together every rotation descended from one login.
type RefreshToken struct {
	SecretHash [32]byte
	AccountID  string
	LineageID  string
	ExpiresAt  time.Time
	Revoked    bool
	DeviceInfo string
	CreatedAt  time.Time
}

// OneTimeToken is a stored email-verification or password-reset token.
// Used is one-way: no operation ever clears it.
type OneTimeToken struct {
	SecretHash [32]byte
	AccountID  string
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// TokenPair is the credential bundle issued by Login and Refresh.
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Store is the durable persistence contract the integrator supplies.
// Implementations must honor the adapter sentinels in errors.go and keep
// the three atomic operations (RotateRefreshToken, ConsumeVerificationToken,
// ConsumeResetToken) single-winner under concurrency.
//
// The store package ships a memory implementation for tests and a
// postgres implementation for production.
type Store interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error

	InsertRefreshToken(ctx context.Context, token RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash [32]byte) (RefreshToken, error)
	// RotateRefreshToken revokes the non-revoked record matching oldHash
	// and inserts next, atomically. Returns ErrRotateConflict when the
	// record is already revoked and ErrNotFound when it never existed.
	RotateRefreshToken(ctx context.Context, oldHash [32]byte, next RefreshToken) error
	// RevokeRefreshToken marks one record revoked. Idempotent.
	RevokeRefreshToken(ctx context.Context, hash [32]byte) error
	// RevokeLineage marks every record in the lineage revoked. Idempotent.
	RevokeLineage(ctx context.Context, lineageID string) error
	RevokeAllForAccount(ctx context.Context, accountID string) error

	InsertVerificationToken(ctx context.Context, token OneTimeToken) error
	// ConsumeVerificationToken flips the matching unused, unexpired token
	// to used and returns it. Everything else fails with ErrTokenConsumed
	// or ErrNotFound.
	//
	// Consumption and the account mutation it authorizes are separate
	// store calls. A crash between them burns the token without applying
	// its effect; the user recovers by requesting a fresh token, and the
	// single-winner guarantee is unaffected.
	ConsumeVerificationToken(ctx context.Context, hash [32]byte) (OneTimeToken, error)

	InsertResetToken(ctx context.Context, token OneTimeToken) error
	ConsumeResetToken(ctx context.Context, hash [32]byte) (OneTimeToken, error)

	// DeleteExpired removes expired refresh and one-time token rows.
	// Housekeeping only; correctness never depends on it running.
	DeleteExpired(ctx context.Context, now time.Time) error
}

// Notifier delivers plaintext verification and reset tokens to the
// account holder. The engine calls it synchronously inside the issuing
// operation; slow transports should queue internally.
type Notifier interface {
	SendVerification(ctx context.Context, account Account, token string) error
	SendPasswordReset(ctx context.Context, account Account, token string) error
}

// LogNotifier writes token notifications to the standard logger. A
// development stand-in, never for production: it prints live secrets.
type LogNotifier struct{}

func (LogNotifier) SendVerification(_ context.Context, account Account, token string) error {
	log.Printf("authcore: verification token for %s: %s", account.Email, token)
	return nil
}

func (LogNotifier) SendPasswordReset(_ context.Context, account Account, token string) error {
	log.Printf("authcore: password reset token for %s: %s", account.Email, token)
	return nil
}
