package flows

import (
	"context"
	"time"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureRotateConflict
	RefreshFailureAccountGone
	RefreshFailureAccountInactive
	RefreshFailureUnverified
	RefreshFailureNextSecret
	RefreshFailureIssueAccess
	RefreshFailureStore
)

// RefreshResult carries either the issued token pair or failure metadata.
// The root engine maps Failure onto its sentinel errors and drives audit
// and metrics off it.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	AccountID string
	LineageID string
	Pair      TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RefreshTTL              time.Duration
	RequireVerifiedForLogin bool

	Now func() time.Time

	DecodeToken  func(string) ([32]byte, error)
	NewSecret    func() ([32]byte, error)
	DigestSecret func([32]byte) [32]byte
	EncodeSecret func([32]byte) string

	FindByHash  func(context.Context, [32]byte) (RefreshRecord, error)
	IsNotFound  func(error) bool
	FindAccount func(context.Context, string) (Account, error)

	// Rotate atomically revokes the record matching oldHash and inserts
	// next in its place. A conflict error means another caller won the
	// rotation between our read and write.
	Rotate     func(ctx context.Context, oldHash [32]byte, next RefreshRecord) error
	IsConflict func(error) bool

	RevokeLineage func(context.Context, string) error

	// IssueAccess mints the JWT and reports its lifetime in seconds.
	IssueAccess func(Account) (string, int64, error)

	Warn func(string, ...any)
}

// RunRefresh rotates a refresh token and issues a new token pair.
//
// A presented secret whose record is already revoked is treated as theft
// evidence: the entire lineage is revoked before the caller is refused, so
// whichever party still holds the live tail loses it too.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}

	providedHash, err := deps.DecodeToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	record, err := deps.FindByHash(ctx, providedHash)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}

	if record.Revoked {
		if err := deps.RevokeLineage(ctx, record.LineageID); err != nil {
			deps.Warn("authcore: lineage revocation after reuse failed")
		}
		return RefreshResult{
			Failure:   RefreshFailureReuse,
			AccountID: record.AccountID,
			LineageID: record.LineageID,
		}
	}

	if !record.ExpiresAt.After(deps.Now()) {
		return RefreshResult{
			Failure:   RefreshFailureExpired,
			AccountID: record.AccountID,
			LineageID: record.LineageID,
		}
	}

	account, err := deps.FindAccount(ctx, record.AccountID)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			// Account deleted out from under the lineage. Kill the
			// lineage so the orphaned tail cannot be replayed.
			if rerr := deps.RevokeLineage(ctx, record.LineageID); rerr != nil {
				deps.Warn("authcore: lineage revocation for orphaned account failed")
			}
			return RefreshResult{
				Failure:   RefreshFailureAccountGone,
				Err:       err,
				AccountID: record.AccountID,
				LineageID: record.LineageID,
			}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, AccountID: record.AccountID, LineageID: record.LineageID}
	}

	if !account.Active {
		if err := deps.RevokeLineage(ctx, record.LineageID); err != nil {
			deps.Warn("authcore: lineage revocation for inactive account failed")
		}
		return RefreshResult{
			Failure:   RefreshFailureAccountInactive,
			AccountID: account.ID,
			LineageID: record.LineageID,
		}
	}
	if deps.RequireVerifiedForLogin && !account.EmailVerified {
		return RefreshResult{
			Failure:   RefreshFailureUnverified,
			AccountID: account.ID,
			LineageID: record.LineageID,
		}
	}

	nextSecret, err := deps.NewSecret()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, AccountID: account.ID, LineageID: record.LineageID}
	}

	now := deps.Now()
	next := RefreshRecord{
		SecretHash: deps.DigestSecret(nextSecret),
		AccountID:  account.ID,
		LineageID:  record.LineageID,
		ExpiresAt:  now.Add(deps.RefreshTTL),
		DeviceInfo: record.DeviceInfo,
		CreatedAt:  now,
	}

	if err := deps.Rotate(ctx, providedHash, next); err != nil {
		if deps.IsConflict != nil && deps.IsConflict(err) {
			// Lost the race: a concurrent caller already rotated this
			// record. The provided secret is now revoked, so this is
			// the same evidence as a reuse.
			if rerr := deps.RevokeLineage(ctx, record.LineageID); rerr != nil {
				deps.Warn("authcore: lineage revocation after rotate conflict failed")
			}
			return RefreshResult{
				Failure:   RefreshFailureRotateConflict,
				Err:       err,
				AccountID: account.ID,
				LineageID: record.LineageID,
			}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, AccountID: account.ID, LineageID: record.LineageID}
	}

	access, expiresIn, err := deps.IssueAccess(account)
	if err != nil {
		// Rotation already landed but the pair never reached the
		// client. Revoke the lineage rather than strand a live record
		// whose secret nobody holds.
		if rerr := deps.RevokeLineage(ctx, record.LineageID); rerr != nil {
			deps.Warn("authcore: lineage revocation after access issuance failure failed")
		}
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, AccountID: account.ID, LineageID: record.LineageID}
	}

	return RefreshResult{
		AccountID: account.ID,
		LineageID: record.LineageID,
		Pair: TokenPair{
			AccessToken:  access,
			RefreshToken: deps.EncodeSecret(nextSecret),
			ExpiresIn:    expiresIn,
		},
	}
}
