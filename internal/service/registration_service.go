package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/codegen"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

type registrationRepository interface {
	Count(ctx context.Context) (int, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	CreateWithCode(ctx context.Context, reg *models.Registration, contacts []models.ContactNumber, guardians []models.Guardian, codeID string) error
	Approve(ctx context.Context, id string, appCode *models.RegistrationCode) error
	UpdateStatus(ctx context.Context, id string, from, to models.RegistrationStatus) error
	SoftDelete(ctx context.Context, id string) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
}

type yearLevelReader interface {
	FindByID(ctx context.Context, id string) (*models.YearLevel, error)
}

type codeValidator interface {
	Validate(ctx context.Context, code, prefix string, reqCtx *models.RequestContext) (*models.RegistrationCode, error)
	Mint(ctx context.Context, prefix string) (string, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]models.RegistrationCode, error)
}

// GuardianInput is one guardian entry from the intake form.
type GuardianInput struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Relationship  string `json:"relationship"`
	Occupation    string `json:"occupation"`
	ContactNumber string `json:"contact_number"`
}

// SubmitRegistrationRequest is the intake form payload plus the presented
// access code.
type SubmitRegistrationRequest struct {
	Code           string          `json:"code" validate:"required"`
	FirstName      string          `json:"first_name" validate:"required"`
	MiddleName     string          `json:"middle_name"`
	LastName       string          `json:"last_name" validate:"required"`
	Suffix         string          `json:"suffix"`
	BirthDate      *time.Time      `json:"birth_date"`
	Gender         string          `json:"gender"`
	Nationality    string          `json:"nationality"`
	Religion       string          `json:"religion"`
	AddressLine    string          `json:"address_line"`
	Barangay       string          `json:"barangay"`
	City           string          `json:"city"`
	Province       string          `json:"province"`
	PostalCode     string          `json:"postal_code"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentRefNo   string          `json:"payment_ref_no"`
	AcademicTermID string          `json:"academic_term_id" validate:"required"`
	YearLevelID    string          `json:"year_level_id" validate:"required"`
	ContactNumbers []string        `json:"contact_numbers"`
	Guardians      []GuardianInput `json:"guardians"`
}

// RegistrationServiceConfig tunes the approval workflow.
type RegistrationServiceConfig struct {
	ApplicationCodeTTL time.Duration
}

// RegistrationService orchestrates the submission and registrar-decision
// workflows. It is the error boundary for user-facing messages: raw
// datastore errors are audit-logged but never surfaced.
type RegistrationService struct {
	repo       registrationRepository
	terms      termReader
	yearLevels yearLevelReader
	codes      codeValidator
	audit      auditLogger
	metrics    *MetricsService
	clock      localtime.Clock
	config     RegistrationServiceConfig
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo registrationRepository, terms termReader, yearLevels yearLevelReader, codes codeValidator, audit auditLogger, metrics *MetricsService, clock localtime.Clock, config RegistrationServiceConfig, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if clock == nil {
		clock = localtime.System
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ApplicationCodeTTL <= 0 {
		config.ApplicationCodeTTL = 24 * time.Hour
	}
	return &RegistrationService{
		repo: repo, terms: terms, yearLevels: yearLevels, codes: codes,
		audit: audit, metrics: metrics, clock: clock, config: config,
		validator: validate, logger: logger,
	}
}

// Submit accepts intake data plus a presented code, and atomically creates
// a PENDING registration while consuming the code.
func (s *RegistrationService) Submit(ctx context.Context, req SubmitRegistrationRequest, reqCtx *models.RequestContext) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	rc, err := s.codes.Validate(ctx, req.Code, codegen.PrefixRegistration, reqCtx)
	if err != nil {
		return nil, err
	}

	term, err := s.terms.FindByID(ctx, req.AcademicTermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic term not found")
		}
		return nil, s.failSubmit(ctx, req, reqCtx, "load academic term", err)
	}
	if term.Status != models.TermStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "academic term is not accepting registrations")
	}

	level, err := s.yearLevels.FindByID(ctx, req.YearLevelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "year level not found")
		}
		return nil, s.failSubmit(ctx, req, reqCtx, "load year level", err)
	}

	// Display/reference string only. The count is read outside the
	// creating transaction, so concurrent submissions can race to the
	// same suffix; the surrogate id stays the primary key.
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, s.failSubmit(ctx, req, reqCtx, "derive student number", err)
	}
	studentNo := fmt.Sprintf("%s-%d-%04d", rc.Code, term.StartYear(), count+1)

	reg := &models.Registration{
		StudentNo:      studentNo,
		FirstName:      req.FirstName,
		MiddleName:     req.MiddleName,
		LastName:       req.LastName,
		Suffix:         req.Suffix,
		BirthDate:      req.BirthDate,
		Gender:         req.Gender,
		Nationality:    req.Nationality,
		Religion:       req.Religion,
		AddressLine:    req.AddressLine,
		Barangay:       req.Barangay,
		City:           req.City,
		Province:       req.Province,
		PostalCode:     req.PostalCode,
		PaymentMethod:  req.PaymentMethod,
		PaymentRefNo:   req.PaymentRefNo,
		AcademicTermID: term.ID,
		YearLevelID:    level.ID,
		Status:         models.RegistrationStatusPending,
	}

	if err := s.repo.CreateWithCode(ctx, reg, buildContacts(req.ContactNumbers), buildGuardians(req.Guardians), rc.ID); err != nil {
		if isUniqueViolation(err) {
			dup := SecurityEvent(models.SubTypeDuplicateAttempt, fmt.Sprintf("Duplicate registration attempt with code %s", rc.Code), nil)
			dup.TargetType = "Registration"
			dup.TargetName = studentNo
			dup.Request = reqCtx
			s.audit.Log(ctx, dup)
		}
		return nil, s.failSubmit(ctx, req, reqCtx, "create registration", err)
	}

	entry := RegistrationEvent(models.ActionCreate, fmt.Sprintf("Registration %s submitted", studentNo), nil)
	entry.TargetType = "Registration"
	entry.TargetID = reg.ID
	entry.TargetName = studentNo
	entry.NewValues = models.Snapshot{
		"student_no": studentNo,
		"name":       reg.FullName(),
		"term":       term.Name,
		"year_level": level.Name,
		"status":     string(reg.Status),
		"code":       rc.Code,
	}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	s.metrics.IncRegistrationSubmitted()

	detail, err := s.repo.FindDetailByID(ctx, reg.ID)
	if err != nil {
		// The write committed; degrade to the bare record.
		s.logger.Warn("failed to load registration detail after submit", zap.Error(err))
		return &models.RegistrationDetail{Registration: *reg, TermName: term.Name, SchoolYear: term.SchoolYear, YearLevelName: level.Name}, nil
	}
	return detail, nil
}

// Approve transitions a PENDING registration to APPROVED and mints its
// single-use APP- code. Not re-entrant: a second call fails.
func (s *RegistrationService) Approve(ctx context.Context, id string, actor *models.Actor, reqCtx *models.RequestContext) (*models.RegistrationCode, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration id is required")
	}

	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, s.failDecision(ctx, id, actor, reqCtx, models.ActionApprove, err)
	}
	switch reg.Status {
	case models.RegistrationStatusApproved:
		return nil, appErrors.Clone(appErrors.ErrAlreadyApproved, "")
	case models.RegistrationStatusRejected:
		return nil, appErrors.Clone(appErrors.ErrAlreadyRejected, "")
	}

	code, err := s.codes.Mint(ctx, codegen.PrefixApplication)
	if err != nil {
		return nil, s.failDecision(ctx, id, actor, reqCtx, models.ActionApprove, err)
	}
	expiration := s.clock.Now().Add(s.config.ApplicationCodeTTL)
	appCode := &models.RegistrationCode{
		Code:           code,
		Status:         models.CodeStatusActive,
		ExpirationDate: &expiration,
	}

	if err := s.repo.Approve(ctx, id, appCode); err != nil {
		return nil, s.failDecision(ctx, id, actor, reqCtx, models.ActionApprove, err)
	}

	entry := RegistrationEvent(models.ActionUpdate, fmt.Sprintf("Registration %s approved", reg.StudentNo), actor)
	entry.ActionSubType = models.ActionApprove
	entry.Severity = models.SeverityHigh
	entry.TargetType = "Registration"
	entry.TargetID = reg.ID
	entry.TargetName = reg.StudentNo
	entry.OldValues = models.Snapshot{"status": string(models.RegistrationStatusPending)}
	entry.NewValues = models.Snapshot{
		"status":           string(models.RegistrationStatusApproved),
		"application_code": appCode.Code,
		"expiration_date":  expiration,
	}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	s.metrics.IncRegistrationApproved()
	s.metrics.IncCodeGenerated()

	return appCode, nil
}

// Reject is the terminal PENDING -> REJECTED transition. No code is
// minted and no transition out of REJECTED exists.
func (s *RegistrationService) Reject(ctx context.Context, id string, actor *models.Actor, reqCtx *models.RequestContext) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "registration id is required")
	}

	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return s.failDecision(ctx, id, actor, reqCtx, models.ActionReject, err)
	}
	switch reg.Status {
	case models.RegistrationStatusApproved:
		return appErrors.Clone(appErrors.ErrAlreadyApproved, "")
	case models.RegistrationStatusRejected:
		return appErrors.Clone(appErrors.ErrAlreadyRejected, "")
	}

	if err := s.repo.UpdateStatus(ctx, id, models.RegistrationStatusPending, models.RegistrationStatusRejected); err != nil {
		return s.failDecision(ctx, id, actor, reqCtx, models.ActionReject, err)
	}

	entry := RegistrationEvent(models.ActionUpdate, fmt.Sprintf("Registration %s rejected", reg.StudentNo), actor)
	entry.ActionSubType = models.ActionReject
	entry.Severity = models.SeverityHigh
	entry.TargetType = "Registration"
	entry.TargetID = reg.ID
	entry.TargetName = reg.StudentNo
	entry.OldValues = models.Snapshot{"status": string(models.RegistrationStatusPending)}
	entry.NewValues = models.Snapshot{"status": string(models.RegistrationStatusRejected)}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	s.metrics.IncRegistrationRejected()

	return nil
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return registrations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Detail loads a registration with its children and code history.
func (s *RegistrationService) Detail(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	codes, err := s.codes.ListByRegistration(ctx, id)
	if err != nil {
		s.logger.Warn("failed to load code history", zap.String("registration_id", id), zap.Error(err))
	} else {
		detail.Codes = codes
	}
	return detail, nil
}

// Delete soft-deletes a registration. Available from any state.
func (s *RegistrationService) Delete(ctx context.Context, id string, actor *models.Actor, reqCtx *models.RequestContext) error {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return s.failDecision(ctx, id, actor, reqCtx, models.ActionDelete, err)
	}

	entry := RegistrationEvent(models.ActionDelete, fmt.Sprintf("Registration %s deleted", reg.StudentNo), actor)
	entry.Severity = models.SeverityHigh
	entry.TargetType = "Registration"
	entry.TargetID = reg.ID
	entry.TargetName = reg.StudentNo
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	return nil
}

func (s *RegistrationService) failSubmit(ctx context.Context, req SubmitRegistrationRequest, reqCtx *models.RequestContext, op string, err error) error {
	entry := RegistrationEvent(models.ActionCreate, "Registration submission failed: "+op, nil)
	entry.Status = models.LogStatusFailed
	entry.ErrorMessage = err.Error()
	entry.TargetType = "Registration"
	entry.TargetName = strings.TrimSpace(req.FirstName + " " + req.LastName)
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}

func (s *RegistrationService) failDecision(ctx context.Context, id string, actor *models.Actor, reqCtx *models.RequestContext, action string, err error) error {
	entry := RegistrationEvent(models.ActionUpdate, fmt.Sprintf("Registration decision failed (%s)", action), actor)
	entry.ActionSubType = action
	entry.Status = models.LogStatusFailed
	entry.ErrorMessage = err.Error()
	entry.TargetType = "Registration"
	entry.TargetID = id
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}

func buildContacts(numbers []string) []models.ContactNumber {
	var contacts []models.ContactNumber
	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		contacts = append(contacts, models.ContactNumber{Number: number})
	}
	return contacts
}

func buildGuardians(inputs []GuardianInput) []models.Guardian {
	var guardians []models.Guardian
	for _, in := range inputs {
		if strings.TrimSpace(in.FirstName) == "" && strings.TrimSpace(in.LastName) == "" {
			continue
		}
		guardians = append(guardians, models.Guardian{
			FirstName:     strings.TrimSpace(in.FirstName),
			LastName:      strings.TrimSpace(in.LastName),
			Relationship:  in.Relationship,
			Occupation:    in.Occupation,
			ContactNumber: in.ContactNumber,
		})
	}
	return guardians
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
