package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/casevault/casevault/internal/config"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDB opens a gorm handle over a sqlmock connection with regexp query
// matching, so tests can assert the SQL the services emit.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open error: %v", err)
	}
	return gdb, mock
}

// expectAuditInsert matches the audit trail write. The audit model carries
// column defaults, so gorm issues the INSERT as a query with a RETURNING
// clause.
func expectAuditInsert(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "details"}).
			AddRow(uuid.New().String(), []byte(`{}`)))
}

func requireMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return &config.Config{
		JWTSecret:          "test-secret",
		JWTAccessExpiry:    15 * time.Minute,
		JWTRefreshExpiry:   time.Hour,
		PasswordMinLength:  8,
		MaxLoginAttempts:   3,
		LockoutDuration:    15 * time.Minute,
		OpenAIAPIKey:       "sk-test",
		TranscriptionModel: "whisper-1",
		SummaryModel:       "gpt-4o",
		SummaryMaxTokens:   1500,
		SummaryTemperature: 0.3,
		AITimeout:          5 * time.Second,
		DataDir:            dataDir,
		AudioDir:           filepath.Join(dataDir, "audio"),
	}
}
