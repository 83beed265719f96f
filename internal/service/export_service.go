package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/export"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

// ExportFormat selects the rendering backend.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type registrationExportSource interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error)
	Detail(ctx context.Context, id string) (*models.RegistrationDetail, error)
}

type logExportSource interface {
	List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, *models.Pagination, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderSheet(sheet export.Sheet) ([]byte, error)
}

// ExportFile is a rendered document ready to stream to a client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders registration rosters, registration sheets and
// audit-log extracts into downloadable CSV/PDF documents. Rendering is
// synchronous; files are never persisted server-side.
type ExportService struct {
	registrations registrationExportSource
	logs          logExportSource
	audit         auditLogger
	csv           csvRenderer
	pdf           pdfRenderer
	clock         localtime.Clock
	logger        *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(registrations registrationExportSource, logs logExportSource, audit auditLogger, clock localtime.Clock, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = localtime.System
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		registrations: registrations,
		logs:          logs,
		audit:         audit,
		csv:           csv,
		pdf:           pdf,
		clock:         clock,
		logger:        logger,
	}
}

// RegistrationRoster exports registrations matching the filter. Paging is
// overridden so the roster covers everything the filter matches.
func (s *ExportService) RegistrationRoster(ctx context.Context, filter models.RegistrationFilter, format ExportFormat, actor *models.Actor, reqCtx *models.RequestContext) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize
	rows, _, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student No":  r.StudentNo,
			"Name":        r.FullName(),
			"Year Level":  r.YearLevelName,
			"Term":        r.TermName,
			"School Year": r.SchoolYear,
			"Status":      string(r.Status),
			"Submitted":   s.formatTime(r.CreatedAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student No", "Name", "Year Level", "Term", "School Year", "Status", "Submitted"},
		Rows:    dataRows,
	}

	title := "Registration Roster"
	if filter.Status != "" {
		title = fmt.Sprintf("%s (%s)", title, filter.Status)
	}

	file, err := s.render(dataset, title, "registrations", format)
	if err != nil {
		return nil, err
	}
	s.logExport(ctx, actor, reqCtx, "Registration", fmt.Sprintf("Exported registration roster as %s (%d rows)", strings.ToUpper(string(format)), len(dataRows)), models.Snapshot{
		"format": string(format),
		"rows":   len(dataRows),
		"status": string(filter.Status),
	})
	return file, nil
}

// RegistrationSheet exports a single registration as a printable PDF
// enrollment sheet including guardians, contacts and code history.
func (s *ExportService) RegistrationSheet(ctx context.Context, id string, actor *models.Actor, reqCtx *models.RequestContext) (*ExportFile, error) {
	detail, err := s.registrations.Detail(ctx, id)
	if err != nil {
		return nil, err
	}

	sheet := export.Sheet{
		Title:    "Registration Sheet",
		Subtitle: fmt.Sprintf("%s %s", detail.TermName, detail.SchoolYear),
		Sections: []export.SheetSection{
			{
				Heading: "Applicant",
				Fields: []export.SheetField{
					{Label: "Student No", Value: detail.StudentNo},
					{Label: "Name", Value: detail.FullName()},
					{Label: "Birth Date", Value: s.formatDatePtr(detail.BirthDate)},
					{Label: "Gender", Value: detail.Gender},
					{Label: "Nationality", Value: detail.Nationality},
					{Label: "Religion", Value: detail.Religion},
					{Label: "Year Level", Value: detail.YearLevelName},
					{Label: "Status", Value: string(detail.Status)},
				},
			},
			{
				Heading: "Address",
				Fields: []export.SheetField{
					{Label: "Address", Value: detail.AddressLine},
					{Label: "Barangay", Value: detail.Barangay},
					{Label: "City", Value: detail.City},
					{Label: "Province", Value: detail.Province},
					{Label: "Postal Code", Value: detail.PostalCode},
				},
			},
		},
		GeneratedAt: s.clock.Now().In(localtime.Zone),
	}

	if len(detail.Guardians) > 0 {
		section := export.SheetSection{Heading: "Guardians"}
		for _, g := range detail.Guardians {
			name := strings.TrimSpace(g.FirstName + " " + g.LastName)
			value := name
			if g.ContactNumber != "" {
				value = fmt.Sprintf("%s (%s)", name, g.ContactNumber)
			}
			section.Fields = append(section.Fields, export.SheetField{Label: g.Relationship, Value: value})
		}
		sheet.Sections = append(sheet.Sections, section)
	}

	if len(detail.Contacts) > 0 {
		section := export.SheetSection{Heading: "Contact Numbers"}
		for _, c := range detail.Contacts {
			label := c.Label
			if label == "" {
				label = "Phone"
			}
			section.Fields = append(section.Fields, export.SheetField{Label: label, Value: c.Number})
		}
		sheet.Sections = append(sheet.Sections, section)
	}

	if len(detail.Codes) > 0 {
		section := export.SheetSection{Heading: "Registration Codes"}
		for _, code := range detail.Codes {
			value := string(code.Status)
			if code.ExpirationDate != nil {
				value = fmt.Sprintf("%s, expires %s", code.Status, s.formatTime(*code.ExpirationDate))
			}
			section.Fields = append(section.Fields, export.SheetField{Label: code.Code, Value: value})
		}
		sheet.Sections = append(sheet.Sections, section)
	}

	payload, err := s.pdf.RenderSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("render registration sheet: %w", err)
	}

	s.logExport(ctx, actor, reqCtx, "Registration", fmt.Sprintf("Exported registration sheet for %s", detail.StudentNo), models.Snapshot{
		"registration_id": detail.ID,
		"student_no":      detail.StudentNo,
	})

	return &ExportFile{
		Filename:    s.filename("registration_sheet_"+sanitizeFilename(detail.StudentNo), "pdf"),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}

// AuditLogExtract exports system log entries matching the filter as CSV.
func (s *ExportService) AuditLogExtract(ctx context.Context, filter models.SystemLogFilter, actor *models.Actor, reqCtx *models.RequestContext) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize
	rows, _, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, entry := range rows {
		dataRows = append(dataRows, map[string]string{
			"Log Number":  entry.LogNumber,
			"Timestamp":   s.formatTime(entry.Timestamp),
			"Category":    string(entry.ActionCategory),
			"Action":      entry.ActionType,
			"Description": entry.ActionDesc,
			"Actor":       derefString(entry.UserName),
			"Status":      string(entry.Status),
			"Severity":    string(entry.SeverityLevel),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Log Number", "Timestamp", "Category", "Action", "Description", "Actor", "Status", "Severity"},
		Rows:    dataRows,
	}

	file, err := s.render(dataset, "Audit Log Extract", "system_logs", ExportFormatCSV)
	if err != nil {
		return nil, err
	}
	s.logExport(ctx, actor, reqCtx, "SystemLog", fmt.Sprintf("Exported audit log extract (%d rows)", len(dataRows)), models.Snapshot{
		"rows": len(dataRows),
	})
	return file, nil
}

// exportPageSize caps how many rows a single export pulls.
const exportPageSize = 10000

func (s *ExportService) render(dataset export.Dataset, title, prefix string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
		return &ExportFile{Filename: s.filename(prefix, "csv"), ContentType: "text/csv", Payload: payload}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		return &ExportFile{Filename: s.filename(prefix, "pdf"), ContentType: "application/pdf", Payload: payload}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (s *ExportService) filename(prefix, ext string) string {
	timestamp := s.clock.Now().In(localtime.Zone).Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, ext)
}

func (s *ExportService) logExport(ctx context.Context, actor *models.Actor, reqCtx *models.RequestContext, targetType, description string, meta models.Snapshot) {
	entry := UserEvent("EXPORT", description, actor)
	entry.TargetType = targetType
	entry.Metadata = meta
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
}

func (s *ExportService) formatTime(t time.Time) string {
	return t.In(localtime.Zone).Format("2006-01-02 15:04")
}

func (s *ExportService) formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(localtime.Zone).Format("2006-01-02")
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
