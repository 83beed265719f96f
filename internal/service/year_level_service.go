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

type yearLevelRepository interface {
	FindByID(ctx context.Context, id string) (*models.YearLevel, error)
	List(ctx context.Context) ([]models.YearLevel, error)
	Create(ctx context.Context, level *models.YearLevel) error
	Update(ctx context.Context, level *models.YearLevel) error
}

// YearLevelRequest is the admin payload for creating or editing a level.
type YearLevelRequest struct {
	Name      string `json:"name" validate:"required"`
	LevelRank int    `json:"level_rank" validate:"required,min=1"`
	Active    bool   `json:"active"`
}

// YearLevelService manages the year-level reference table.
type YearLevelService struct {
	repo      yearLevelRepository
	cache     referenceCache
	audit     auditLogger
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewYearLevelService constructs a YearLevelService.
func NewYearLevelService(repo yearLevelRepository, cache referenceCache, audit auditLogger, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *YearLevelService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &YearLevelService{repo: repo, cache: cache, audit: audit, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// FindByID returns a year level, read through the cache.
func (s *YearLevelService) FindByID(ctx context.Context, id string) (*models.YearLevel, error) {
	key := "reference:yearlevel:" + id
	if s.cache != nil {
		var cached models.YearLevel
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, level, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache year level", zap.Error(err))
		}
	}
	return level, nil
}

// List returns all year levels ordered by rank.
func (s *YearLevelService) List(ctx context.Context) ([]models.YearLevel, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list year levels")
	}
	return levels, nil
}

// Create adds a year level.
func (s *YearLevelService) Create(ctx context.Context, req YearLevelRequest, actor *models.Actor, reqCtx *models.RequestContext) (*models.YearLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid year level payload")
	}
	level := &models.YearLevel{Name: req.Name, LevelRank: req.LevelRank, Active: req.Active}
	if err := s.repo.Create(ctx, level); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	s.invalidate(ctx)

	entry := AcademicEvent(models.ActionCreate, fmt.Sprintf("Year level %s created", level.Name), actor)
	entry.TargetType = "YearLevel"
	entry.TargetID = level.ID
	entry.TargetName = level.Name
	entry.NewValues = models.Snapshot{"name": level.Name, "level_rank": level.LevelRank, "active": level.Active}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)

	return level, nil
}

// Update edits a year level.
func (s *YearLevelService) Update(ctx context.Context, id string, req YearLevelRequest, actor *models.Actor, reqCtx *models.RequestContext) (*models.YearLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid year level payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "year level not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	updated := *current
	updated.Name = req.Name
	updated.LevelRank = req.LevelRank
	updated.Active = req.Active
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	s.invalidate(ctx)

	entry := AcademicEvent(models.ActionUpdate, fmt.Sprintf("Year level %s updated", updated.Name), actor)
	entry.TargetType = "YearLevel"
	entry.TargetID = updated.ID
	entry.TargetName = updated.Name
	entry.OldValues = models.Snapshot{"name": current.Name, "level_rank": current.LevelRank, "active": current.Active}
	entry.NewValues = models.Snapshot{"name": updated.Name, "level_rank": updated.LevelRank, "active": updated.Active}
	entry.Request = reqCtx
	s.audit.Log(ctx, entry)

	return &updated, nil
}

func (s *YearLevelService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "reference:yearlevel:*"); err != nil {
		s.logger.Warn("failed to invalidate year level cache", zap.Error(err))
	}
}
