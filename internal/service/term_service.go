package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
)

type termRepository interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	FindActive(ctx context.Context) (*models.AcademicTerm, error)
	List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, int, error)
	Create(ctx context.Context, term *models.AcademicTerm) error
	Update(ctx context.Context, term *models.AcademicTerm) error
	DeactivateOthers(ctx context.Context, keepID string) error
}

type referenceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateTermRequest describes the admin payload for a new term.
type CreateTermRequest struct {
	Name       string    `json:"name" validate:"required"`
	SchoolYear string    `json:"school_year" validate:"required"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Status     string    `json:"status"`
}

// UpdateTermRequest describes the admin payload for editing a term.
type UpdateTermRequest struct {
	Name       string    `json:"name" validate:"required"`
	SchoolYear string    `json:"school_year" validate:"required"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Status     string    `json:"status" validate:"required,oneof=ACTIVE UPCOMING CLOSED"`
}

// TermService manages academic terms. Reads used by the submission
// workflow go through the reference cache.
type TermService struct {
	repo      termRepository
	cache     referenceCache
	audit     auditLogger
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs a TermService. A nil cache disables caching.
func NewTermService(repo termRepository, cache referenceCache, audit auditLogger, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &TermService{repo: repo, cache: cache, audit: audit, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// FindByID returns a term, read through the cache.
func (s *TermService) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	key := "reference:term:" + id
	if s.cache != nil {
		var cached models.AcademicTerm
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, term, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache term", zap.Error(err))
		}
	}
	return term, nil
}

// Active returns the single active term.
func (s *TermService) Active(ctx context.Context) (*models.AcademicTerm, error) {
	term, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active academic term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active term")
	}
	return term, nil
}

// List returns terms with pagination metadata.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return terms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create registers a new academic term.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest, actor *models.Actor, reqCtx *models.RequestContext) (*models.AcademicTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	status := models.TermStatus(req.Status)
	if status == "" {
		status = models.TermStatusUpcoming
	}
	term := &models.AcademicTerm{
		Name:       req.Name,
		SchoolYear: req.SchoolYear,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Status:     status,
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	s.invalidate(ctx)

	entry := AcademicEvent(models.ActionCreate, fmt.Sprintf("Academic term %s created", term.Name), actor)
	entry.TargetType = "AcademicTerm"
	entry.TargetID = term.ID
	entry.TargetName = term.Name
	entry.NewValues = models.Snapshot{
		"name":        term.Name,
		"school_year": term.SchoolYear,
		"status":      string(term.Status),
	}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)

	return term, nil
}

// Update edits a term. Activating a term closes any other active one.
func (s *TermService) Update(ctx context.Context, id string, req UpdateTermRequest, actor *models.Actor, reqCtx *models.RequestContext) (*models.AcademicTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	updated := *current
	updated.Name = req.Name
	updated.SchoolYear = req.SchoolYear
	updated.StartDate = req.StartDate
	updated.EndDate = req.EndDate
	updated.Status = models.TermStatus(req.Status)

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	if updated.Status == models.TermStatusActive && current.Status != models.TermStatusActive {
		if err := s.repo.DeactivateOthers(ctx, updated.ID); err != nil {
			s.logger.Warn("failed to close other active terms", zap.Error(err))
		}
	}
	s.invalidate(ctx)

	entry := AcademicEvent(models.ActionUpdate, fmt.Sprintf("Academic term %s updated", updated.Name), actor)
	entry.TargetType = "AcademicTerm"
	entry.TargetID = updated.ID
	entry.TargetName = updated.Name
	entry.OldValues = models.Snapshot{
		"name":        current.Name,
		"school_year": current.SchoolYear,
		"status":      string(current.Status),
	}
	entry.NewValues = models.Snapshot{
		"name":        updated.Name,
		"school_year": updated.SchoolYear,
		"status":      string(updated.Status),
	}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)

	return &updated, nil
}

func (s *TermService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "reference:term:*"); err != nil {
		s.logger.Warn("failed to invalidate term cache", zap.Error(err))
	}
}
