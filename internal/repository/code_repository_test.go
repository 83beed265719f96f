package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCodeRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCodeRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM registration_codes WHERE code = $1 LIMIT 1")).
		WithArgs("REG-AAAAAAAA").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "REG-AAAAAAAA")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepositoryExistsMiss(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCodeRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM registration_codes WHERE code = $1 LIMIT 1")).
		WithArgs("REG-BBBBBBBB").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.Exists(context.Background(), "REG-BBBBBBBB")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCodeRepository(db, nil)

	expiry := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "code", "status", "expiration_date", "registration_id", "application_id", "created_at"}).
		AddRow("c1", "REG-AAAAAAAA", models.CodeStatusActive, expiry, nil, nil, time.Now())
	mock.ExpectQuery("SELECT .+ FROM registration_codes WHERE code = \\$1").
		WithArgs("REG-AAAAAAAA").
		WillReturnRows(rows)

	rc, err := repo.FindByCode(context.Background(), "REG-AAAAAAAA")
	require.NoError(t, err)
	require.Equal(t, "c1", rc.ID)
	require.Equal(t, models.CodeStatusActive, rc.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCodeRepository(db, nil)

	mock.ExpectExec("INSERT INTO registration_codes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	expiry := time.Now().Add(time.Hour)
	rc := &models.RegistrationCode{Code: "REG-CCCCCCCC", Status: models.CodeStatusActive, ExpirationDate: &expiry}
	require.NoError(t, repo.Create(context.Background(), rc))
	require.NotEmpty(t, rc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepositoryCreateStampsInjectedClock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, localtime.Zone)
	repo := NewCodeRepository(db, localtime.Fixed(now))

	mock.ExpectExec("INSERT INTO registration_codes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	expiry := now.Add(time.Hour)
	rc := &models.RegistrationCode{Code: "REG-DDDDDDDD", Status: models.CodeStatusActive, ExpirationDate: &expiry}
	require.NoError(t, repo.Create(context.Background(), rc))
	require.True(t, rc.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCodeRepository(db, nil)

	rows := sqlmock.NewRows([]string{"id", "code", "status", "expiration_date", "registration_id", "application_id", "created_at"}).
		AddRow("c1", "REG-AAAAAAAA", models.CodeStatusActive, nil, nil, nil, time.Now())
	mock.ExpectQuery("SELECT .+ FROM registration_codes WHERE 1=1 AND status = \\$1 AND code LIKE \\$2").
		WithArgs(models.CodeStatusActive, "REG-%").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM registration_codes WHERE 1=1").
		WithArgs(models.CodeStatusActive, "REG-%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	codes, total, err := repo.List(context.Background(), models.CodeFilter{Status: models.CodeStatusActive, Prefix: "reg"})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
