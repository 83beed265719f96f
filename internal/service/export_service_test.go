package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/export"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

type stubRegistrationSource struct {
	rows       []models.RegistrationDetail
	detail     *models.RegistrationDetail
	detailErr  error
	lastFilter models.RegistrationFilter
}

func (s *stubRegistrationSource) List(_ context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	s.lastFilter = filter
	return s.rows, &models.Pagination{TotalCount: len(s.rows)}, nil
}

func (s *stubRegistrationSource) Detail(_ context.Context, _ string) (*models.RegistrationDetail, error) {
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	return s.detail, nil
}

type stubLogSource struct {
	rows       []models.SystemLog
	lastFilter models.SystemLogFilter
}

func (s *stubLogSource) List(_ context.Context, filter models.SystemLogFilter) ([]models.SystemLog, *models.Pagination, error) {
	s.lastFilter = filter
	return s.rows, &models.Pagination{TotalCount: len(s.rows)}, nil
}

type stubCSV struct {
	dataset export.Dataset
}

func (s *stubCSV) Render(data export.Dataset) ([]byte, error) {
	s.dataset = data
	return []byte("csv-bytes"), nil
}

type stubPDF struct {
	dataset export.Dataset
	title   string
	sheet   export.Sheet
}

func (s *stubPDF) Render(data export.Dataset, title string) ([]byte, error) {
	s.dataset = data
	s.title = title
	return []byte("pdf-bytes"), nil
}

func (s *stubPDF) RenderSheet(sheet export.Sheet) ([]byte, error) {
	s.sheet = sheet
	return []byte("sheet-bytes"), nil
}

func registrationDetailFixture() models.RegistrationDetail {
	birth := time.Date(2012, 4, 2, 0, 0, 0, 0, localtime.Zone)
	expiry := time.Date(2026, 6, 16, 10, 0, 0, 0, localtime.Zone)
	return models.RegistrationDetail{
		Registration: models.Registration{
			ID:        "r1",
			StudentNo: "REG-AAAAAAAA-2026-0001",
			FirstName: "Maria",
			LastName:  "Santos",
			BirthDate: &birth,
			Status:    models.RegistrationStatusApproved,
			CreatedAt: time.Date(2026, 6, 15, 10, 0, 0, 0, localtime.Zone),
		},
		TermName:      "First Semester",
		SchoolYear:    "2026-2027",
		YearLevelName: "Grade 7",
		Guardians: []models.Guardian{
			{FirstName: "Jose", LastName: "Santos", Relationship: "FATHER", ContactNumber: "09179876543"},
		},
		Contacts: []models.ContactNumber{{Number: "09171234567", Label: "mobile"}},
		Codes: []models.RegistrationCode{
			{Code: "REG-AAAAAAAA", Status: models.CodeStatusInactive},
			{Code: "APP-MINTED00", Status: models.CodeStatusActive, ExpirationDate: &expiry},
		},
	}
}

func newExportFixture(regs *stubRegistrationSource, logs *stubLogSource) (*ExportService, *capturingAudit, *stubCSV, *stubPDF) {
	audit := &capturingAudit{}
	csv := &stubCSV{}
	pdf := &stubPDF{}
	clock := localtime.Fixed(time.Date(2026, 6, 20, 9, 30, 0, 0, localtime.Zone))
	return NewExportService(regs, logs, audit, clock, zap.NewNop(), csv, pdf), audit, csv, pdf
}

func TestExportServiceRosterCSV(t *testing.T) {
	regs := &stubRegistrationSource{rows: []models.RegistrationDetail{registrationDetailFixture()}}
	svc, audit, csv, _ := newExportFixture(regs, &stubLogSource{})

	file, err := svc.RegistrationRoster(context.Background(), models.RegistrationFilter{Status: models.RegistrationStatusApproved}, ExportFormatCSV, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "registrations_20260620_093000.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, []byte("csv-bytes"), file.Payload)

	require.Len(t, csv.dataset.Rows, 1)
	row := csv.dataset.Rows[0]
	assert.Equal(t, "REG-AAAAAAAA-2026-0001", row["Student No"])
	assert.Equal(t, "Maria Santos", row["Name"])
	assert.Equal(t, "Grade 7", row["Year Level"])
	assert.Equal(t, "2026-06-15 10:00", row["Submitted"])

	assert.Equal(t, 1, regs.lastFilter.Page)
	assert.Equal(t, exportPageSize, regs.lastFilter.PageSize)

	userLogs := audit.byCategory(models.LogCategoryUser)
	require.Len(t, userLogs, 1)
	assert.Equal(t, "EXPORT", userLogs[0].ActionType)
	assert.Equal(t, "Registration", userLogs[0].TargetType)
}

func TestExportServiceRosterPDFTitle(t *testing.T) {
	regs := &stubRegistrationSource{rows: []models.RegistrationDetail{registrationDetailFixture()}}
	svc, _, _, pdf := newExportFixture(regs, &stubLogSource{})

	file, err := svc.RegistrationRoster(context.Background(), models.RegistrationFilter{Status: models.RegistrationStatusApproved}, ExportFormatPDF, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "Registration Roster (APPROVED)", pdf.title)
}

func TestExportServiceRosterUnsupportedFormat(t *testing.T) {
	regs := &stubRegistrationSource{}
	svc, audit, _, _ := newExportFixture(regs, &stubLogSource{})

	_, err := svc.RegistrationRoster(context.Background(), models.RegistrationFilter{}, ExportFormat("xlsx"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
	assert.Empty(t, audit.byCategory(models.LogCategoryUser))
}

func TestExportServiceRegistrationSheet(t *testing.T) {
	detail := registrationDetailFixture()
	regs := &stubRegistrationSource{detail: &detail}
	svc, audit, _, pdf := newExportFixture(regs, &stubLogSource{})

	file, err := svc.RegistrationSheet(context.Background(), "r1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "registration_sheet_REG-AAAAAAAA-2026-0001_20260620_093000.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)

	require.Len(t, pdf.sheet.Sections, 5)
	assert.Equal(t, "Applicant", pdf.sheet.Sections[0].Heading)
	assert.Equal(t, "Guardians", pdf.sheet.Sections[2].Heading)
	assert.Equal(t, "FATHER", pdf.sheet.Sections[2].Fields[0].Label)
	assert.Equal(t, "Jose Santos (09179876543)", pdf.sheet.Sections[2].Fields[0].Value)
	assert.Equal(t, "Registration Codes", pdf.sheet.Sections[4].Heading)
	assert.Equal(t, "APP-MINTED00", pdf.sheet.Sections[4].Fields[1].Label)
	assert.Contains(t, pdf.sheet.Sections[4].Fields[1].Value, "expires 2026-06-16 10:00")

	userLogs := audit.byCategory(models.LogCategoryUser)
	require.Len(t, userLogs, 1)
	assert.Contains(t, userLogs[0].Description, "REG-AAAAAAAA-2026-0001")
}

func TestExportServiceAuditLogExtract(t *testing.T) {
	actorName := "Ana Reyes"
	logs := &stubLogSource{rows: []models.SystemLog{{
		LogNumber:      "LOG-202606-000007",
		Timestamp:      time.Date(2026, 6, 18, 16, 45, 0, 0, localtime.Zone),
		ActionCategory: models.LogCategoryRegistration,
		ActionType:     "CREATE",
		ActionDesc:     "registration submitted",
		UserName:       &actorName,
		Status:         models.LogStatusSuccess,
		SeverityLevel:  models.SeverityLow,
	}}}
	svc, audit, csv, _ := newExportFixture(&stubRegistrationSource{}, logs)

	file, err := svc.AuditLogExtract(context.Background(), models.SystemLogFilter{Category: models.LogCategoryRegistration}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "system_logs_20260620_093000.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	require.Len(t, csv.dataset.Rows, 1)
	row := csv.dataset.Rows[0]
	assert.Equal(t, "LOG-202606-000007", row["Log Number"])
	assert.Equal(t, "2026-06-18 16:45", row["Timestamp"])
	assert.Equal(t, "Ana Reyes", row["Actor"])

	assert.Equal(t, exportPageSize, logs.lastFilter.PageSize)
	userLogs := audit.byCategory(models.LogCategoryUser)
	require.Len(t, userLogs, 1)
	assert.Equal(t, "SystemLog", userLogs[0].TargetType)
}
