package flows

import (
	"context"
	"time"
)

// Account is the flow-local account model. The root engine maps its public
// Account type onto this one so flows never import the root package.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	Active        bool
	EmailVerified bool
	FailedLogins  int
	LockedUntil   *time.Time
}

// RefreshRecord is one stored refresh-token grant. SecretHash is the only
// representation of the secret that ever reaches a flow.
type RefreshRecord struct {
	SecretHash [32]byte
	AccountID  string
	LineageID  string
	ExpiresAt  time.Time
	Revoked    bool
	DeviceInfo string
	CreatedAt  time.Time
}

// OneTimeRecord is a stored email-verification or password-reset token.
type OneTimeRecord struct {
	SecretHash [32]byte
	AccountID  string
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// TokenPair is the issued credential bundle returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AuditFunc mirrors the root engine's emitAudit signature: event type,
// success, account id, lineage id, error, lazy detail map.
type AuditFunc func(ctx context.Context, event string, success bool, accountID, lineageID string, err error, detail func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {
}

func noopMetric(int) {}

func noopWarn(string, ...any) {}
