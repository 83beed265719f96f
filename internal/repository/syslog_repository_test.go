package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

func TestSystemLogRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSystemLogRepository(db, nil)

	mock.ExpectExec("INSERT INTO system_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.SystemLog{
		LogNumber:      "LOG-202603-000042",
		Timestamp:      time.Now(),
		ActionCategory: models.LogCategoryRegistration,
		ActionType:     "CREATE",
		ActionDesc:     "registration submitted",
		Status:         models.LogStatusSuccess,
		SeverityLevel:  models.SeverityLow,
	}
	require.NoError(t, repo.Insert(context.Background(), entry))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemLogRepositoryInsertStampsInjectedClock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, localtime.Zone)
	repo := NewSystemLogRepository(db, localtime.Fixed(now))

	mock.ExpectExec("INSERT INTO system_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.SystemLog{
		LogNumber:      "LOG-202606-000001",
		Timestamp:      now,
		ActionCategory: models.LogCategoryRegistration,
		ActionType:     "CREATE",
		ActionDesc:     "registration submitted",
		Status:         models.LogStatusSuccess,
		SeverityLevel:  models.SeverityLow,
	}
	require.NoError(t, repo.Insert(context.Background(), entry))
	require.True(t, entry.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemLogRepositoryHighestLogNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSystemLogRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_number FROM system_logs WHERE log_number LIKE $1 AND log_number ~ '^LOG-[0-9]{6}-[0-9]{6}$' ORDER BY log_number DESC LIMIT 1")).
		WithArgs("LOG-202603-%").
		WillReturnRows(sqlmock.NewRows([]string{"log_number"}).AddRow("LOG-202603-000041"))

	number, err := repo.HighestLogNumber(context.Background(), "LOG-202603-")
	require.NoError(t, err)
	require.Equal(t, "LOG-202603-000041", number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemLogRepositoryHighestLogNumberEmptyMonth(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSystemLogRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_number FROM system_logs WHERE log_number LIKE $1 AND log_number ~ '^LOG-[0-9]{6}-[0-9]{6}$' ORDER BY log_number DESC LIMIT 1")).
		WithArgs("LOG-202604-%").
		WillReturnRows(sqlmock.NewRows([]string{"log_number"}))

	number, err := repo.HighestLogNumber(context.Background(), "LOG-202604-")
	require.NoError(t, err)
	require.Empty(t, number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemLogRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSystemLogRepository(db, nil)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "log_number", "timestamp", "action_category", "action_type", "action_description", "status", "severity_level", "is_sensitive_data", "created_at"}).
		AddRow("l1", "LOG-202603-000001", now, models.LogCategoryAuth, "LOGIN", "user signed in", models.LogStatusSuccess, models.SeverityLow, false, now)
	mock.ExpectQuery("(?s)SELECT .+ FROM system_logs WHERE 1=1 AND action_category = \\$1").
		WithArgs(models.LogCategoryAuth).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM system_logs WHERE 1=1").
		WithArgs(models.LogCategoryAuth).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.List(context.Background(), models.SystemLogFilter{Category: models.LogCategoryAuth})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "LOG-202603-000001", logs[0].LogNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}
