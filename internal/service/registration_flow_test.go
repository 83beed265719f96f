package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

// flowRegistrationRepo backs the composed lifecycle tests. Unlike
// mockRegistrationRepo it shares code state with a mockCodeRepo, so
// consuming a code during CreateWithCode is visible to a real
// CodeService validating the same code afterwards.
type flowRegistrationRepo struct {
	codes         *mockCodeRepo
	registrations map[string]models.Registration
}

func (m *flowRegistrationRepo) Count(ctx context.Context) (int, error) {
	return len(m.registrations), nil
}

func (m *flowRegistrationRepo) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if r, ok := m.registrations[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *flowRegistrationRepo) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	if r, ok := m.registrations[id]; ok {
		return &models.RegistrationDetail{Registration: r}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *flowRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	var out []models.RegistrationDetail
	for _, r := range m.registrations {
		out = append(out, models.RegistrationDetail{Registration: r})
	}
	return out, len(out), nil
}

func (m *flowRegistrationRepo) CreateWithCode(ctx context.Context, reg *models.Registration, contacts []models.ContactNumber, guardians []models.Guardian, codeID string) error {
	m.codes.mu.Lock()
	defer m.codes.mu.Unlock()

	var key string
	for code, rc := range m.codes.codes {
		if rc.ID == codeID {
			key = code
			break
		}
	}
	rc, ok := m.codes.codes[key]
	if !ok || rc.Status != models.CodeStatusActive {
		return fmt.Errorf("registration code %s no longer active", codeID)
	}

	if m.registrations == nil {
		m.registrations = make(map[string]models.Registration)
	}
	if reg.ID == "" {
		reg.ID = fmt.Sprintf("reg-%d", len(m.registrations)+1)
	}
	m.registrations[reg.ID] = *reg

	rc.Status = models.CodeStatusInactive
	rc.RegistrationID = &reg.ID
	m.codes.codes[key] = rc
	return nil
}

func (m *flowRegistrationRepo) Approve(ctx context.Context, id string, appCode *models.RegistrationCode) error {
	r, ok := m.registrations[id]
	if !ok || r.Status != models.RegistrationStatusPending {
		return sql.ErrNoRows
	}
	r.Status = models.RegistrationStatusApproved
	m.registrations[id] = r
	appCode.RegistrationID = &id
	return m.codes.Create(ctx, appCode)
}

func (m *flowRegistrationRepo) UpdateStatus(ctx context.Context, id string, from, to models.RegistrationStatus) error {
	r, ok := m.registrations[id]
	if !ok || r.Status != from {
		return sql.ErrNoRows
	}
	r.Status = to
	m.registrations[id] = r
	return nil
}

func (m *flowRegistrationRepo) SoftDelete(ctx context.Context, id string) error {
	delete(m.registrations, id)
	return nil
}

// newFlowFixture wires a real CodeService into a real RegistrationService
// over shared in-memory state, so code redemption crosses both services.
func newFlowFixture(t *testing.T) (*RegistrationService, *CodeService, *mockCodeRepo, *capturingAudit) {
	t.Helper()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, localtime.Zone)
	codeRepo := &mockCodeRepo{}
	audit := &capturingAudit{}
	codeSvc := NewCodeService(codeRepo, audit, localtime.Fixed(now),
		nil, CodeServiceConfig{StandaloneTTL: time.Hour}, zap.NewNop(), fixedRandom("AAAAAAAA"))

	regRepo := &flowRegistrationRepo{codes: codeRepo}
	terms := &mockTermReader{terms: map[string]*models.AcademicTerm{"t1": activeTermFixture()}}
	levels := &mockYearLevelReader{levels: map[string]*models.YearLevel{"y1": {ID: "y1", Name: "Grade 7", LevelRank: 7, Active: true}}}
	regSvc := NewRegistrationService(regRepo, terms, levels, codeSvc, audit, nil,
		localtime.Fixed(now), RegistrationServiceConfig{ApplicationCodeTTL: 24 * time.Hour}, nil, zap.NewNop())
	return regSvc, codeSvc, codeRepo, audit
}

func TestRegistrationLifecycleGenerateSubmitApprove(t *testing.T) {
	regSvc, codeSvc, codeRepo, _ := newFlowFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, localtime.Zone)

	issued, err := codeSvc.GenerateStandalone(ctx, &models.Actor{ID: "u1", Role: models.RoleRegistrar}, nil)
	require.NoError(t, err)
	assert.Equal(t, "REG-AAAAAAAA", issued.Code)
	require.NotNil(t, issued.ExpirationDate)
	assert.Equal(t, now.Add(time.Hour), *issued.ExpirationDate)

	req := submitRequestFixture()
	req.Code = issued.Code
	detail, err := regSvc.Submit(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "REG-AAAAAAAA-2026-0001", detail.StudentNo)
	assert.Equal(t, models.RegistrationStatusPending, detail.Status)

	// Redemption flipped the code and linked it to the registration.
	redeemed, err := codeRepo.FindByCode(ctx, issued.Code)
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusInactive, redeemed.Status)
	require.NotNil(t, redeemed.RegistrationID)
	assert.Equal(t, detail.ID, *redeemed.RegistrationID)

	appCode, err := regSvc.Approve(ctx, detail.ID, &models.Actor{ID: "u1", Role: models.RoleRegistrar}, nil)
	require.NoError(t, err)
	assert.Equal(t, "APP-AAAAAAAA", appCode.Code)
	assert.Equal(t, models.CodeStatusActive, appCode.Status)
	require.NotNil(t, appCode.ExpirationDate)
	assert.Equal(t, now.Add(24*time.Hour), *appCode.ExpirationDate)

	approved, err := regSvc.Detail(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusApproved, approved.Status)
}

func TestRegistrationLifecycleCodeIsSingleUse(t *testing.T) {
	regSvc, codeSvc, _, audit := newFlowFixture(t)
	ctx := context.Background()

	issued, err := codeSvc.GenerateStandalone(ctx, &models.Actor{ID: "u1", Role: models.RoleRegistrar}, nil)
	require.NoError(t, err)

	req := submitRequestFixture()
	req.Code = issued.Code
	first, err := regSvc.Submit(ctx, req, nil)
	require.NoError(t, err)

	second := submitRequestFixture()
	second.Code = issued.Code
	second.FirstName = "Clara"
	_, err = regSvc.Submit(ctx, second, nil)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCodeUsed.Code, appErr.Code)

	// Exactly one registration survives the double redemption.
	list, pagination, err := regSvc.List(ctx, models.RegistrationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.TotalCount)
	require.Len(t, list, 1)
	assert.Equal(t, first.StudentNo, list[0].StudentNo)

	var rejected []models.LogEntry
	for _, e := range audit.byCategory(models.LogCategoryRegistration) {
		if e.Status == models.LogStatusFailed {
			rejected = append(rejected, e)
		}
	}
	require.Len(t, rejected, 1)
	assert.Equal(t, issued.Code, rejected[0].TargetName)
}
