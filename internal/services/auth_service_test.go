package services

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/casevault/casevault/internal/auth"
	"github.com/casevault/casevault/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secret123!"

// testPasswordHash is computed once; bcrypt is deliberately slow.
var testPasswordHash = func() string {
	h, err := auth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

func newAuthService(t *testing.T) (*AuthService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewAuthService(db, testConfig(t), NewAuditService(db)), mock
}

func userRows(u models.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "password_hash", "role", "full_name", "email",
		"is_active", "failed_login_attempts", "locked_until", "last_login",
	}).AddRow(
		u.ID.String(), u.Username, u.PasswordHash, u.Role, u.FullName, u.Email,
		u.IsActive, u.FailedLoginAttempts, u.LockedUntil, u.LastLogin,
	)
}

func activeUser(attempts int) models.User {
	return models.User{
		ID:                  uuid.New(),
		Username:            "alice",
		PasswordHash:        testPasswordHash,
		Role:                models.RoleSocialWorker,
		IsActive:            true,
		FailedLoginAttempts: attempts,
	}
}

const selectUserForUpdate = `SELECT \* FROM "users" WHERE username = \$1.*FOR UPDATE`

func TestAuthenticate_MissingCredentials(t *testing.T) {
	svc, mock := newAuthService(t)

	if _, err := svc.Authenticate("", testPassword, "127.0.0.1"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("want ErrMissingCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("alice", "", "127.0.0.1"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("want ErrMissingCredentials, got %v", err)
	}
	requireMet(t, mock)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	svc, mock := newAuthService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Authenticate("ghost", testPassword, "127.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	requireMet(t, mock)
}

func TestAuthenticate_Success_ResetsCounter(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(2)

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	mock.ExpectExec(`UPDATE "users" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	got, err := svc.Authenticate("alice", testPassword, "127.0.0.1")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if got.FailedLoginAttempts != 0 {
		t.Fatalf("attempts not reset: %d", got.FailedLoginAttempts)
	}
	if got.LockedUntil != nil {
		t.Fatal("lockout not cleared on success")
	}
	if got.LastLogin == nil {
		t.Fatal("last login not stamped")
	}
	requireMet(t, mock)
}

func TestAuthenticate_WrongPassword_IncrementsAndCommits(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(0)

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	mock.ExpectExec(`UPDATE "users" SET "failed_login_attempts"`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)
	// The increment and audit row must survive the rejected attempt.
	mock.ExpectCommit()

	_, err := svc.Authenticate("alice", "wrong-pass-9!", "127.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	requireMet(t, mock)
}

func TestAuthenticate_LocksAtThreshold(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(2) // MaxLoginAttempts is 3 in testConfig

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	mock.ExpectExec(`UPDATE "users" SET "failed_login_attempts"=\$1,"locked_until"=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	_, err := svc.Authenticate("alice", "wrong-pass-9!", "127.0.0.1")

	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("want AccountLockedError, got %v", err)
	}
	if !locked.Until.After(time.Now()) {
		t.Fatalf("lockout must end in the future, got %v", locked.Until)
	}
	requireMet(t, mock)
}

func TestAuthenticate_LockedAccount_RejectsCorrectPassword(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(3)
	until := time.Now().Add(10 * time.Minute)
	u.LockedUntil = &until

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	_, err := svc.Authenticate("alice", testPassword, "127.0.0.1")

	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("want AccountLockedError even with correct password, got %v", err)
	}
	requireMet(t, mock)
}

func TestAuthenticate_ExpiredLock_AllowsLogin(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(3)
	until := time.Now().Add(-time.Minute)
	u.LockedUntil = &until

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	mock.ExpectExec(`UPDATE "users" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	got, err := svc.Authenticate("alice", testPassword, "127.0.0.1")
	if err != nil {
		t.Fatalf("expired lock must not block login: %v", err)
	}
	if got.LockedUntil != nil {
		t.Fatal("expired lock not cleared")
	}
	requireMet(t, mock)
}

func TestAuthenticate_DeactivatedAccount(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(0)
	u.IsActive = false

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	_, err := svc.Authenticate("alice", testPassword, "127.0.0.1")
	if !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("want ErrAccountDeactivated, got %v", err)
	}
	requireMet(t, mock)
}

func TestLogin_IssuesTokenPair(t *testing.T) {
	svc, mock := newAuthService(t)
	u := activeUser(0)

	mock.ExpectBegin()
	mock.ExpectQuery(selectUserForUpdate).WillReturnRows(userRows(u))
	mock.ExpectExec(`UPDATE "users" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)
	mock.ExpectCommit()

	// The id column default makes gorm issue the insert with RETURNING.
	mock.ExpectQuery(`INSERT INTO "refresh_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	resp, err := svc.Login("alice", testPassword, "127.0.0.1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if resp.User.Username != "alice" || resp.User.Role != models.RoleSocialWorker {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	requireMet(t, mock)
}

func TestAuthenticate_UnknownUserTimingHash(t *testing.T) {
	// The hash compared on the unknown-user branch must be a real bcrypt
	// hash so the branch costs the same as checking an existing account.
	cost, err := bcrypt.Cost([]byte(dummyHash))
	if err != nil {
		t.Fatalf("dummy hash must parse as bcrypt: %v", err)
	}
	if cost < bcrypt.DefaultCost {
		t.Fatalf("dummy hash cost = %d, want >= %d", cost, bcrypt.DefaultCost)
	}
}

func TestCreateUser_UsernameTakenPrecheck(t *testing.T) {
	svc, mock := newAuthService(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1`).
		WillReturnRows(userRows(activeUser(0)))

	_, err := svc.CreateUser("alice", "Secret123!", models.RoleSocialWorker, "", "", uuid.New(), "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("want ErrUsernameTaken, got %v", err)
	}
	requireMet(t, mock)
}

func TestCreateUser_DuplicateLosesRaceAtInsert(t *testing.T) {
	svc, mock := newAuthService(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := svc.CreateUser("alice", "Secret123!", models.RoleSocialWorker, "", "", uuid.New(), "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("unique violation must map to ErrUsernameTaken, got %v", err)
	}
	requireMet(t, mock)
}

func TestCreateUser_RejectsWeakPasswordAndBadRole(t *testing.T) {
	svc, mock := newAuthService(t)
	actor := uuid.New()

	if _, err := svc.CreateUser("bob", "Secret123!", "superuser", "", "", actor, ""); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("want ErrInvalidRole, got %v", err)
	}
	if _, err := svc.CreateUser("bob", "weakpass", models.RoleSocialWorker, "", "", actor, ""); err == nil {
		t.Fatal("weak password accepted")
	}
	requireMet(t, mock)
}

func TestHashToken_Deterministic(t *testing.T) {
	if hashToken("abc") != hashToken("abc") {
		t.Fatal("hashToken must be deterministic")
	}
	if hashToken("abc") == hashToken("abd") {
		t.Fatal("different tokens must hash differently")
	}
	if got := len(hashToken("abc")); got != 64 {
		t.Fatalf("hex sha256 length = %d, want 64", got)
	}
}
