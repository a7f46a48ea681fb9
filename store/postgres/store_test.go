package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/calthas/authcore"
)

// anyArgs matches n parameters of any value. The statements carry value
// structs whole, so per-argument assertions add little over the SQL match.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func accountArgs() []any { return anyArgs(10) }

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return New(mock), mock
}

func TestCreateAccountDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(accountArgs()...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := s.CreateAccount(context.Background(), authcore.Account{ID: "acc-1", Email: "a@x.com"})
	if !errors.Is(err, authcore.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateAccountSetsTimestamps(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(accountArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	account, err := s.CreateAccount(context.Background(), authcore.Account{ID: "acc-1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if account.CreatedAt.IsZero() || account.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestAccountByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, email").
		WithArgs("ghost@x.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.AccountByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountByEmailScansRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, email").
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "email", "password_hash", "role", "active", "email_verified",
			"failed_logins", "locked_until", "created_at", "updated_at",
		}).AddRow("acc-1", "a@x.com", "$argon2id$...", "user", true, false, 2, nil, now, now))

	account, err := s.AccountByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if account.ID != "acc-1" || account.FailedLogins != 2 || account.LockedUntil != nil {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestUpdateAccountMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE accounts").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateAccount(context.Background(), authcore.Account{ID: "ghost"})
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateRefreshTokenWinner(t *testing.T) {
	s, mock := newMockStore(t)
	oldHash := sha256.Sum256([]byte("old"))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(oldHash[:]).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	next := authcore.RefreshToken{
		SecretHash: sha256.Sum256([]byte("next")),
		AccountID:  "acc-1",
		LineageID:  "lin-1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := s.RotateRefreshToken(context.Background(), oldHash, next); err != nil {
		t.Fatalf("rotation failed: %v", err)
	}
}

func TestRotateRefreshTokenConflict(t *testing.T) {
	s, mock := newMockStore(t)
	oldHash := sha256.Sum256([]byte("old"))

	// Zero rows updated but the record exists: a concurrent rotation won.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(oldHash[:]).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT count").
		WithArgs(oldHash[:]).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectRollback()

	err := s.RotateRefreshToken(context.Background(), oldHash, authcore.RefreshToken{})
	if !errors.Is(err, authcore.ErrRotateConflict) {
		t.Fatalf("expected ErrRotateConflict, got %v", err)
	}
}

func TestRotateRefreshTokenUnknownHash(t *testing.T) {
	s, mock := newMockStore(t)
	oldHash := sha256.Sum256([]byte("ghost"))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(oldHash[:]).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT count").
		WithArgs(oldHash[:]).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectRollback()

	err := s.RotateRefreshToken(context.Background(), oldHash, authcore.RefreshToken{})
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeTokenAlreadyUsed(t *testing.T) {
	s, mock := newMockStore(t)
	hash := sha256.Sum256([]byte("token"))

	// The conditional UPDATE matches nothing for used, expired, and
	// unknown rows alike.
	mock.ExpectQuery("UPDATE verification_tokens").
		WithArgs(hash[:]).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.ConsumeVerificationToken(context.Background(), hash)
	if !errors.Is(err, authcore.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed, got %v", err)
	}
}

func TestConsumeTokenWinner(t *testing.T) {
	s, mock := newMockStore(t)
	hash := sha256.Sum256([]byte("token"))
	now := time.Now()

	mock.ExpectQuery("UPDATE reset_tokens").
		WithArgs(hash[:]).
		WillReturnRows(pgxmock.NewRows([]string{
			"secret_hash", "account_id", "expires_at", "used", "created_at",
		}).AddRow(hash[:], "acc-1", now.Add(time.Hour), true, now))

	token, err := s.ConsumeResetToken(context.Background(), hash)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if token.AccountID != "acc-1" || !token.Used || token.SecretHash != hash {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestRevokeLineage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("lin-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	if err := s.RevokeLineage(context.Background(), "lin-1"); err != nil {
		t.Fatalf("revoke lineage failed: %v", err)
	}
}

func TestDeleteExpiredSweepsAllTables(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	for _, table := range []string{"refresh_tokens", "verification_tokens", "reset_tokens"} {
		mock.ExpectExec("DELETE FROM " + table).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
	}

	if err := s.DeleteExpired(context.Background(), now); err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
}
