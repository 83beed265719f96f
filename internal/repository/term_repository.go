package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

const termColumns = "id, name, school_year, start_date, end_date, status, created_at, updated_at"

// TermRepository handles persistence for academic terms.
type TermRepository struct {
	db    *sqlx.DB
	clock localtime.Clock
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB, clock localtime.Clock) *TermRepository {
	if clock == nil {
		clock = localtime.System
	}
	return &TermRepository{db: db, clock: clock}
}

// FindByID returns a term by its ID.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_terms WHERE id = $1", termColumns)
	var term models.AcademicTerm
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindActive returns the single ACTIVE term, if any.
func (r *TermRepository) FindActive(ctx context.Context) (*models.AcademicTerm, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_terms WHERE status = $1 ORDER BY start_date DESC LIMIT 1", termColumns)
	var term models.AcademicTerm
	if err := r.db.GetContext(ctx, &term, query, models.TermStatusActive); err != nil {
		return nil, err
	}
	return &term, nil
}

// List returns terms matching provided filters.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, int, error) {
	base := "FROM academic_terms WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{"name": true, "start_date": true, "end_date": true, "school_year": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", termColumns, base, sortBy, order, size, offset)
	var terms []models.AcademicTerm
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list terms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count terms: %w", err)
	}
	return terms, total, nil
}

// Create persists a new term.
func (r *TermRepository) Create(ctx context.Context, term *models.AcademicTerm) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := r.clock.Now()
	term.CreatedAt = now
	term.UpdatedAt = now
	const query = `INSERT INTO academic_terms (id, name, school_year, start_date, end_date, status, created_at, updated_at)
VALUES (:id, :name, :school_year, :start_date, :end_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("insert term: %w", err)
	}
	return nil
}

// Update modifies an existing term.
func (r *TermRepository) Update(ctx context.Context, term *models.AcademicTerm) error {
	term.UpdatedAt = r.clock.Now()
	const query = `UPDATE academic_terms SET name = :name, school_year = :school_year, start_date = :start_date,
end_date = :end_date, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, term)
	if err != nil {
		return fmt.Errorf("update term: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateOthers closes every ACTIVE term except the given one. Keeps the
// single-active-term convention when a term is activated.
func (r *TermRepository) DeactivateOthers(ctx context.Context, keepID string) error {
	const query = `UPDATE academic_terms SET status = $1, updated_at = $2 WHERE status = $3 AND id <> $4`
	if _, err := r.db.ExecContext(ctx, query, models.TermStatusClosed, r.clock.Now(), models.TermStatusActive, keepID); err != nil {
		return fmt.Errorf("deactivate terms: %w", err)
	}
	return nil
}
