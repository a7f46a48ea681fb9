// Package postgres is the production Store implementation on pgx.
// Rotation and token consumption are single-statement conditional writes,
// so the single-winner guarantees hold at the database without explicit
// row locking.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/calthas/authcore"
)

// DB is the subset of pgxpool.Pool the store uses. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements authcore.Store on PostgreSQL.
type Store struct {
	db DB
}

// New wraps an existing pool or mock.
func New(db DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) CreateAccount(ctx context.Context, account authcore.Account) (authcore.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, active, email_verified, failed_logins, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Active,
		account.EmailVerified,
		account.FailedLogins,
		account.LockedUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.Account{}, oops.Code("ACCOUNT_DUPLICATE").
				With("email", account.Email).
				Wrap(authcore.ErrDuplicate)
		}
		return authcore.Account{}, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return account, nil
}

const accountColumns = `id, email, password_hash, role, active, email_verified, failed_logins, locked_until, created_at, updated_at`

func scanAccount(row pgx.Row) (authcore.Account, error) {
	var account authcore.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.Active,
		&account.EmailVerified,
		&account.FailedLogins,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (authcore.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.Account{}, oops.Code("ACCOUNT_NOT_FOUND").Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return authcore.Account{}, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (authcore.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.Account{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id).
			Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return authcore.Account{}, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}
	return account, nil
}

func (s *Store) UpdateAccount(ctx context.Context, account authcore.Account) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, role = $3, active = $4, email_verified = $5,
		    failed_logins = $6, locked_until = $7, updated_at = $8
		WHERE id = $1
	`,
		account.ID,
		account.PasswordHash,
		account.Role,
		account.Active,
		account.EmailVerified,
		account.FailedLogins,
		account.LockedUntil,
		time.Now(),
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID).
			Wrap(authcore.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertRefreshToken(ctx context.Context, token authcore.RefreshToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (secret_hash, account_id, lineage_id, expires_at, revoked, device_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.SecretHash[:],
		token.AccountID,
		token.LineageID,
		token.ExpiresAt,
		token.Revoked,
		token.DeviceInfo,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("REFRESH_DUPLICATE").Wrap(authcore.ErrDuplicate)
		}
		return oops.Code("REFRESH_INSERT_FAILED").
			With("operation", "insert refresh token").
			Wrap(err)
	}
	return nil
}

func scanRefreshToken(row pgx.Row) (authcore.RefreshToken, error) {
	var token authcore.RefreshToken
	var hash []byte
	err := row.Scan(
		&hash,
		&token.AccountID,
		&token.LineageID,
		&token.ExpiresAt,
		&token.Revoked,
		&token.DeviceInfo,
		&token.CreatedAt,
	)
	if err != nil {
		return authcore.RefreshToken{}, err
	}
	copy(token.SecretHash[:], hash)
	return token, nil
}

func (s *Store) RefreshTokenByHash(ctx context.Context, hash [32]byte) (authcore.RefreshToken, error) {
	row := s.db.QueryRow(ctx, `
		SELECT secret_hash, account_id, lineage_id, expires_at, revoked, device_info, created_at
		FROM refresh_tokens
		WHERE secret_hash = $1
	`, hash[:])

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.RefreshToken{}, oops.Code("REFRESH_NOT_FOUND").Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return authcore.RefreshToken{}, oops.Code("REFRESH_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// RotateRefreshToken revokes the live record matching oldHash and inserts
// next in one transaction. The conditional UPDATE is the winner gate: a
// concurrent rotation that commits first leaves revoked = true behind,
// and the loser's update matches zero rows.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash [32]byte, next authcore.RefreshToken) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "begin rotation tx").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true
		WHERE secret_hash = $1 AND revoked = false
	`, oldHash[:])
	if err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "revoke old record").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		row := tx.QueryRow(ctx, `
			SELECT count(*) FROM refresh_tokens WHERE secret_hash = $1
		`, oldHash[:])
		var n int64
		if err := row.Scan(&n); err != nil {
			return oops.Code("REFRESH_ROTATE_FAILED").
				With("operation", "classify rotation miss").
				Wrap(err)
		}
		if n == 0 {
			return oops.Code("REFRESH_NOT_FOUND").Wrap(authcore.ErrNotFound)
		}
		return oops.Code("REFRESH_ROTATE_CONFLICT").Wrap(authcore.ErrRotateConflict)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (secret_hash, account_id, lineage_id, expires_at, revoked, device_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		next.SecretHash[:],
		next.AccountID,
		next.LineageID,
		next.ExpiresAt,
		next.Revoked,
		next.DeviceInfo,
		next.CreatedAt,
	)
	if err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "insert next record").
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "commit rotation tx").
			Wrap(err)
	}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, hash [32]byte) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE secret_hash = $1
	`, hash[:])
	if err != nil {
		return oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return nil
}

func (s *Store) RevokeLineage(ctx context.Context, lineageID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE lineage_id = $1 AND revoked = false
	`, lineageID)
	if err != nil {
		return oops.Code("LINEAGE_REVOKE_FAILED").
			With("operation", "revoke lineage").
			With("lineage_id", lineageID).
			Wrap(err)
	}
	return nil
}

func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE account_id = $1 AND revoked = false
	`, accountID)
	if err != nil {
		return oops.Code("ACCOUNT_REVOKE_FAILED").
			With("operation", "revoke all refresh tokens for account").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}

func (s *Store) InsertVerificationToken(ctx context.Context, token authcore.OneTimeToken) error {
	return s.insertOneTime(ctx, "verification_tokens", token)
}

func (s *Store) ConsumeVerificationToken(ctx context.Context, hash [32]byte) (authcore.OneTimeToken, error) {
	return s.consumeOneTime(ctx, "verification_tokens", hash)
}

func (s *Store) InsertResetToken(ctx context.Context, token authcore.OneTimeToken) error {
	return s.insertOneTime(ctx, "reset_tokens", token)
}

func (s *Store) ConsumeResetToken(ctx context.Context, hash [32]byte) (authcore.OneTimeToken, error) {
	return s.consumeOneTime(ctx, "reset_tokens", hash)
}

func (s *Store) insertOneTime(ctx context.Context, table string, token authcore.OneTimeToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+table+` (secret_hash, account_id, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.SecretHash[:],
		token.AccountID,
		token.ExpiresAt,
		token.Used,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("TOKEN_DUPLICATE").With("table", table).Wrap(authcore.ErrDuplicate)
		}
		return oops.Code("TOKEN_INSERT_FAILED").
			With("operation", "insert one-time token").
			With("table", table).
			Wrap(err)
	}
	return nil
}

// consumeOneTime is the single-winner redemption: the conditional UPDATE
// both checks and flips used, and RETURNING hands back the row only to
// the caller whose update matched.
func (s *Store) consumeOneTime(ctx context.Context, table string, hash [32]byte) (authcore.OneTimeToken, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE `+table+`
		SET used = true
		WHERE secret_hash = $1 AND used = false AND expires_at > now()
		RETURNING secret_hash, account_id, expires_at, used, created_at
	`, hash[:])

	var token authcore.OneTimeToken
	var rawHash []byte
	err := row.Scan(&rawHash, &token.AccountID, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown, expired, and already-used rows are deliberately not
		// told apart; distinguish with a second query only if the table
		// ever needs it.
		return authcore.OneTimeToken{}, oops.Code("TOKEN_CONSUMED").
			With("table", table).
			Wrap(authcore.ErrTokenConsumed)
	}
	if err != nil {
		return authcore.OneTimeToken{}, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume one-time token").
			With("table", table).
			Wrap(err)
	}
	copy(token.SecretHash[:], rawHash)
	return token, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) error {
	for _, table := range []string{"refresh_tokens", "verification_tokens", "reset_tokens"} {
		if _, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE expires_at <= $1`, now); err != nil {
			return oops.Code("EXPIRED_DELETE_FAILED").
				With("table", table).
				Wrap(err)
		}
	}
	return nil
}
