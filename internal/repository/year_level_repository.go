package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

const yearLevelColumns = "id, name, level_rank, active, created_at, updated_at"

// YearLevelRepository handles persistence for year levels.
type YearLevelRepository struct {
	db    *sqlx.DB
	clock localtime.Clock
}

// NewYearLevelRepository instantiates a year-level repository.
func NewYearLevelRepository(db *sqlx.DB, clock localtime.Clock) *YearLevelRepository {
	if clock == nil {
		clock = localtime.System
	}
	return &YearLevelRepository{db: db, clock: clock}
}

// FindByID returns a year level by its ID.
func (r *YearLevelRepository) FindByID(ctx context.Context, id string) (*models.YearLevel, error) {
	query := fmt.Sprintf("SELECT %s FROM year_levels WHERE id = $1", yearLevelColumns)
	var level models.YearLevel
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}

// List returns all year levels ordered by rank.
func (r *YearLevelRepository) List(ctx context.Context) ([]models.YearLevel, error) {
	query := fmt.Sprintf("SELECT %s FROM year_levels ORDER BY level_rank ASC", yearLevelColumns)
	var levels []models.YearLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list year levels: %w", err)
	}
	return levels, nil
}

// Create persists a new year level.
func (r *YearLevelRepository) Create(ctx context.Context, level *models.YearLevel) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	now := r.clock.Now()
	level.CreatedAt = now
	level.UpdatedAt = now
	const query = `INSERT INTO year_levels (id, name, level_rank, active, created_at, updated_at)
VALUES (:id, :name, :level_rank, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("insert year level: %w", err)
	}
	return nil
}

// Update modifies an existing year level.
func (r *YearLevelRepository) Update(ctx context.Context, level *models.YearLevel) error {
	level.UpdatedAt = r.clock.Now()
	const query = `UPDATE year_levels SET name = :name, level_rank = :level_rank, active = :active,
updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, level)
	if err != nil {
		return fmt.Errorf("update year level: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
