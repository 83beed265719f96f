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

const codeColumns = "id, code, status, expiration_date, registration_id, application_id, created_at"

// CodeRepository handles persistence of registration codes.
type CodeRepository struct {
	db    *sqlx.DB
	clock localtime.Clock
}

// NewCodeRepository constructs the repository. A nil clock uses the
// school wall clock.
func NewCodeRepository(db *sqlx.DB, clock localtime.Clock) *CodeRepository {
	if clock == nil {
		clock = localtime.System
	}
	return &CodeRepository{db: db, clock: clock}
}

// Exists reports whether a code string is already taken.
func (r *CodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM registration_codes WHERE code = $1 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check code existence: %w", err)
	}
	return true, nil
}

// FindByCode returns a code row by its code string.
func (r *CodeRepository) FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM registration_codes WHERE code = $1`, codeColumns)
	var rc models.RegistrationCode
	if err := r.db.GetContext(ctx, &rc, query, code); err != nil {
		return nil, err
	}
	return &rc, nil
}

// Create persists a new code row. The caller supplies status, expiration
// and optional links; generation itself never reserves anything.
func (r *CodeRepository) Create(ctx context.Context, rc *models.RegistrationCode) error {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = r.clock.Now()
	}
	const query = `INSERT INTO registration_codes (id, code, status, expiration_date, registration_id, application_id, created_at)
VALUES (:id, :code, :status, :expiration_date, :registration_id, :application_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rc); err != nil {
		return fmt.Errorf("insert registration code: %w", err)
	}
	return nil
}

// ListByRegistration returns every code ever associated with a registration.
func (r *CodeRepository) ListByRegistration(ctx context.Context, registrationID string) ([]models.RegistrationCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM registration_codes WHERE registration_id = $1 ORDER BY created_at ASC`, codeColumns)
	var codes []models.RegistrationCode
	if err := r.db.SelectContext(ctx, &codes, query, registrationID); err != nil {
		return nil, fmt.Errorf("list codes for registration: %w", err)
	}
	return codes, nil
}

// List returns codes filtered by status and prefix.
func (r *CodeRepository) List(ctx context.Context, filter models.CodeFilter) ([]models.RegistrationCode, int, error) {
	base := "FROM registration_codes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Prefix != "" {
		conditions = append(conditions, fmt.Sprintf("code LIKE $%d", len(args)+1))
		args = append(args, strings.ToUpper(filter.Prefix)+"-%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at %s LIMIT %d OFFSET %d", codeColumns, base, order, size, offset)
	var codes []models.RegistrationCode
	if err := r.db.SelectContext(ctx, &codes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registration codes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registration codes: %w", err)
	}
	return codes, total, nil
}
