package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

type mockLogRepo struct {
	inserted   []*models.SystemLog
	insertErr  error
	highest    string
	highestErr error
}

func (m *mockLogRepo) Insert(ctx context.Context, entry *models.SystemLog) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockLogRepo) HighestLogNumber(ctx context.Context, prefix string) (string, error) {
	if m.highestErr != nil {
		return "", m.highestErr
	}
	return m.highest, nil
}

func (m *mockLogRepo) List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, int, error) {
	var out []models.SystemLog
	for _, l := range m.inserted {
		out = append(out, *l)
	}
	return out, len(out), nil
}

type capturingAlerter struct {
	alerted []*models.SystemLog
}

func (a *capturingAlerter) Alert(ctx context.Context, entry *models.SystemLog) {
	a.alerted = append(a.alerted, entry)
}

func auditFixture(repo *mockLogRepo) *AuditService {
	now := time.Date(2026, 3, 10, 14, 30, 5, 0, localtime.Zone)
	return NewAuditService(repo, nil, localtime.Fixed(now), nil, zap.NewNop())
}

func TestAuditServiceLogAssignsSequentialNumber(t *testing.T) {
	repo := &mockLogRepo{highest: "LOG-202603-000041"}
	svc := auditFixture(repo)

	svc.Log(context.Background(), RegistrationEvent(models.ActionCreate, "test entry", nil))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "LOG-202603-000042", repo.inserted[0].LogNumber)
}

func TestAuditServiceLogFirstOfMonth(t *testing.T) {
	repo := &mockLogRepo{}
	svc := auditFixture(repo)

	svc.Log(context.Background(), RegistrationEvent(models.ActionCreate, "test entry", nil))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "LOG-202603-000001", repo.inserted[0].LogNumber)
}

func TestAuditServiceLogNumberFallback(t *testing.T) {
	repo := &mockLogRepo{highestErr: errors.New("relation locked")}
	svc := auditFixture(repo)

	svc.Log(context.Background(), RegistrationEvent(models.ActionCreate, "test entry", nil))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "LOG-202603-9143005", repo.inserted[0].LogNumber)
}

func TestAuditServiceLogNumberNotSeededByFallbackSuffix(t *testing.T) {
	// a timestamp-derived suffix must never be incremented into a
	// seven-digit pseudo-sequence; the format stays LOG-YYYYMM-NNNNNN
	repo := &mockLogRepo{highest: "LOG-202603-9143005"}
	svc := auditFixture(repo)

	svc.Log(context.Background(), RegistrationEvent(models.ActionCreate, "test entry", nil))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "LOG-202603-000001", repo.inserted[0].LogNumber)
}

func TestAuditServiceLogNeverPropagatesWriteFailure(t *testing.T) {
	repo := &mockLogRepo{insertErr: errors.New("disk full")}
	svc := auditFixture(repo)

	// Must not panic and has no error to return.
	svc.Log(context.Background(), RegistrationEvent(models.ActionCreate, "test entry", nil))
	assert.Empty(t, repo.inserted)
}

func TestAuditServiceLogDefaults(t *testing.T) {
	repo := &mockLogRepo{}
	svc := auditFixture(repo)

	svc.Log(context.Background(), models.LogEntry{
		Category:    models.LogCategorySystem,
		ActionType:  models.ActionCreate,
		Description: "bare entry",
	})

	require.Len(t, repo.inserted, 1)
	record := repo.inserted[0]
	assert.Equal(t, models.LogStatusSuccess, record.Status)
	assert.Equal(t, models.SeverityLow, record.SeverityLevel)
	assert.Nil(t, record.UserID)
}

func TestAuditServiceLogCriticalAlerts(t *testing.T) {
	repo := &mockLogRepo{}
	alerter := &capturingAlerter{}
	now := time.Date(2026, 3, 10, 14, 30, 5, 0, localtime.Zone)
	svc := NewAuditService(repo, alerter, localtime.Fixed(now), nil, zap.NewNop())

	entry := SystemEvent(models.ActionDelete, "storage purge")
	entry.Severity = models.SeverityCritical
	svc.Log(context.Background(), entry)

	require.Len(t, alerter.alerted, 1)
}

func TestAuditServiceRedactsSensitiveKeys(t *testing.T) {
	repo := &mockLogRepo{}
	svc := auditFixture(repo)

	entry := UserEvent("PASSWORD_CHANGE", "password updated", &models.Actor{ID: "u1", Name: "Admin"})
	entry.Metadata = models.Snapshot{
		"password":  "hunter2",
		"api_token": "abc123",
		"note":      "kept",
		"nested": map[string]any{
			"creditCardNumber": "4111111111111111",
			"city":             "Manila",
		},
	}
	svc.Log(context.Background(), entry)

	require.Len(t, repo.inserted, 1)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(repo.inserted[0].Metadata, &stored))
	assert.Equal(t, RedactedMarker, stored["password"])
	assert.Equal(t, RedactedMarker, stored["api_token"])
	assert.Equal(t, "kept", stored["note"])
	nested := stored["nested"].(map[string]any)
	assert.Equal(t, RedactedMarker, nested["creditCardNumber"])
	assert.Equal(t, "Manila", nested["city"])
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	original := models.Snapshot{"secret_key": "raw", "plain": "value"}
	redacted := Redact(original)

	assert.Equal(t, "raw", original["secret_key"])
	assert.Equal(t, RedactedMarker, redacted["secret_key"])
	assert.Equal(t, "value", redacted["plain"])
}

func TestChangedFields(t *testing.T) {
	oldValues := models.Snapshot{"a": 1, "b": 2}
	newValues := models.Snapshot{"a": 1, "b": 3, "c": 4}

	assert.Equal(t, []string{"b", "c"}, ChangedFields(oldValues, newValues))
}

func TestChangedFieldsIdentical(t *testing.T) {
	snapshot := models.Snapshot{"a": "x", "b": true}
	assert.Empty(t, ChangedFields(snapshot, snapshot))
}

func TestAuditServiceTimed(t *testing.T) {
	repo := &mockLogRepo{}
	svc := auditFixture(repo)

	err := svc.Timed(context.Background(), AcademicEvent(models.ActionUpdate, "term updated", nil), func() error {
		return nil
	})
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	require.NotNil(t, repo.inserted[0].ExecutionTimeMs)
	assert.GreaterOrEqual(t, *repo.inserted[0].ExecutionTimeMs, int64(1))
}

func TestAuditServiceTimedFailure(t *testing.T) {
	repo := &mockLogRepo{}
	svc := auditFixture(repo)

	wantErr := errors.New("update failed")
	err := svc.Timed(context.Background(), AcademicEvent(models.ActionUpdate, "term updated", nil), func() error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, models.LogStatusFailed, repo.inserted[0].Status)
	require.NotNil(t, repo.inserted[0].ErrorMessage)
	assert.Equal(t, "update failed", *repo.inserted[0].ErrorMessage)
}
