package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/codegen"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

type codeRepository interface {
	Exists(ctx context.Context, code string) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error)
	Create(ctx context.Context, rc *models.RegistrationCode) error
	List(ctx context.Context, filter models.CodeFilter) ([]models.RegistrationCode, int, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]models.RegistrationCode, error)
}

type auditLogger interface {
	Log(ctx context.Context, entry models.LogEntry)
}

// CodeServiceConfig tunes standalone code issuance. Application-code
// TTLs are owned by the approval workflow that mints them.
type CodeServiceConfig struct {
	StandaloneTTL time.Duration
}

// CodeService mints and validates registration codes. Validation never
// mutates; consumption happens inside the registration workflow's
// transaction.
type CodeService struct {
	repo      codeRepository
	generator *codegen.Generator
	audit     auditLogger
	clock     localtime.Clock
	metrics   *MetricsService
	config    CodeServiceConfig
	logger    *zap.Logger
}

// NewCodeService constructs a CodeService. The generator's existence check
// is bound to the repository.
func NewCodeService(repo codeRepository, audit auditLogger, clock localtime.Clock, metrics *MetricsService, config CodeServiceConfig, logger *zap.Logger, genOpts ...codegen.Option) *CodeService {
	if clock == nil {
		clock = localtime.System
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	generator := codegen.New(repo.Exists, genOpts...)
	return &CodeService{repo: repo, generator: generator, audit: audit, clock: clock, metrics: metrics, config: config, logger: logger}
}

// Mint generates a fresh code with the given prefix and TTL. The code is
// not persisted; callers store it together with status and links in the
// write that needs it.
func (s *CodeService) Mint(ctx context.Context, prefix string) (string, error) {
	return s.generator.Generate(ctx, prefix)
}

// GenerateStandalone mints and persists a bare REG- code not yet tied to
// any registration. The registrar hands these out before an applicant
// exists; linkage happens when the code is redeemed.
func (s *CodeService) GenerateStandalone(ctx context.Context, actor *models.Actor, reqCtx *models.RequestContext) (*models.RegistrationCode, error) {
	code, err := s.generator.Generate(ctx, codegen.PrefixRegistration)
	if err != nil {
		s.logFailure(ctx, actor, reqCtx, "generate registration code", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	expiration := s.clock.Now().Add(s.config.StandaloneTTL)
	rc := &models.RegistrationCode{
		Code:           code,
		Status:         models.CodeStatusActive,
		ExpirationDate: &expiration,
	}
	if err := s.repo.Create(ctx, rc); err != nil {
		s.logFailure(ctx, actor, reqCtx, "persist registration code", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	entry := RegistrationEvent(models.ActionCreate, fmt.Sprintf("Generated registration code %s", rc.Code), actor)
	entry.TargetType = "RegistrationCode"
	entry.TargetID = rc.ID
	entry.TargetName = rc.Code
	entry.NewValues = models.Snapshot{
		"code":            rc.Code,
		"status":          string(rc.Status),
		"expiration_date": expiration,
	}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
	s.metrics.IncCodeGenerated()

	return rc, nil
}

// Validate checks a presented code for usability against the required
// stage prefix. Failures are audit-logged; an unknown code additionally
// raises a SECURITY entry since it may be a probing attempt. Expiry is
// enforced here lazily; a stale ACTIVE status does not make an expired
// code usable.
func (s *CodeService) Validate(ctx context.Context, code, prefix string, reqCtx *models.RequestContext) (*models.RegistrationCode, error) {
	if code == "" || !codegen.HasPrefix(code, prefix) {
		s.logInvalidCode(ctx, code, reqCtx, "malformed or missing code")
		return nil, appErrors.Clone(appErrors.ErrCodeInvalid, "")
	}

	rc, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logInvalidCode(ctx, code, reqCtx, "code not found")
			return nil, appErrors.Clone(appErrors.ErrCodeInvalid, "")
		}
		s.logFailure(ctx, nil, reqCtx, "look up registration code", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	if rc.Status != models.CodeStatusActive {
		entry := RegistrationEvent(models.ActionUpdate, fmt.Sprintf("Rejected code %s: already used", code), nil)
		entry.Status = models.LogStatusFailed
		entry.TargetType = "RegistrationCode"
		entry.TargetID = rc.ID
		entry.TargetName = rc.Code
		entry.Request = reqCtx
		s.audit.Log(ctx, entry)
		return nil, appErrors.Clone(appErrors.ErrCodeUsed, "")
	}

	if rc.ExpirationDate == nil || rc.ExpirationDate.Before(s.clock.Now()) {
		entry := RegistrationEvent(models.ActionUpdate, fmt.Sprintf("Rejected code %s: expired", code), nil)
		entry.Status = models.LogStatusFailed
		entry.TargetType = "RegistrationCode"
		entry.TargetID = rc.ID
		entry.TargetName = rc.Code
		entry.Request = reqCtx
		s.audit.Log(ctx, entry)
		return nil, appErrors.Clone(appErrors.ErrCodeExpired, "")
	}

	return rc, nil
}

// Check is the read-only console operation behind the public validate
// endpoint.
func (s *CodeService) Check(ctx context.Context, code string, reqCtx *models.RequestContext) (*models.CodeValidation, error) {
	rc, err := s.Validate(ctx, code, codegen.PrefixRegistration, reqCtx)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code != appErrors.ErrInternal.Code {
			return &models.CodeValidation{Valid: false, Code: code}, nil
		}
		return nil, err
	}
	return &models.CodeValidation{
		Valid:          true,
		Code:           rc.Code,
		RegistrationID: rc.RegistrationID,
		ApplicationID:  rc.ApplicationID,
	}, nil
}

// ListByRegistration returns a registration's code history, oldest first.
func (s *CodeService) ListByRegistration(ctx context.Context, registrationID string) ([]models.RegistrationCode, error) {
	return s.repo.ListByRegistration(ctx, registrationID)
}

// List exposes codes to the registrar console.
func (s *CodeService) List(ctx context.Context, filter models.CodeFilter) ([]models.RegistrationCode, *models.Pagination, error) {
	codes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list codes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return codes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *CodeService) logInvalidCode(ctx context.Context, code string, reqCtx *models.RequestContext, reason string) {
	entry := SecurityEvent(models.SubTypeSuspiciousActivity, fmt.Sprintf("Invalid registration code presented: %s", reason), nil)
	entry.Status = models.LogStatusFailed
	entry.TargetType = "RegistrationCode"
	entry.TargetName = code
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
}

func (s *CodeService) logFailure(ctx context.Context, actor *models.Actor, reqCtx *models.RequestContext, op string, err error) {
	entry := RegistrationEvent(models.ActionCreate, "Registration code operation failed: "+op, actor)
	entry.Status = models.LogStatusFailed
	entry.ErrorMessage = err.Error()
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)
}
