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

const registrationColumns = `id, student_no, first_name, middle_name, last_name, suffix, birth_date, gender,
nationality, religion, address_line, barangay, city, province, postal_code, payment_method, payment_ref_no,
academic_term_id, year_level_id, status, created_at, updated_at, deleted_at`

// RegistrationRepository handles persistence of registrations and the
// transactional consumption of the codes that admit them.
type RegistrationRepository struct {
	db    *sqlx.DB
	clock localtime.Clock
}

// NewRegistrationRepository constructs the repository. A nil clock uses
// the school wall clock.
func NewRegistrationRepository(db *sqlx.DB, clock localtime.Clock) *RegistrationRepository {
	if clock == nil {
		clock = localtime.System
	}
	return &RegistrationRepository{db: db, clock: clock}
}

// Count returns the total number of registrations ever created, including
// soft-deleted rows. Used for the derived student-number sequence.
func (r *RegistrationRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM registrations"); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return total, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf("SELECT %s FROM registrations WHERE id = $1 AND deleted_at IS NULL", registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindDetailByID returns a registration joined with its reference data.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	const query = `SELECT r.id, r.student_no, r.first_name, r.middle_name, r.last_name, r.suffix, r.birth_date,
r.gender, r.nationality, r.religion, r.address_line, r.barangay, r.city, r.province, r.postal_code,
r.payment_method, r.payment_ref_no, r.academic_term_id, r.year_level_id, r.status, r.created_at, r.updated_at,
r.deleted_at, t.name AS term_name, t.school_year, y.name AS year_level_name
FROM registrations r
LEFT JOIN academic_terms t ON t.id = r.academic_term_id
LEFT JOIN year_levels y ON y.id = r.year_level_id
WHERE r.id = $1 AND r.deleted_at IS NULL`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	const guardianQuery = `SELECT id, registration_id, first_name, last_name, relationship, occupation, contact_number
FROM registration_guardians WHERE registration_id = $1`
	if err := r.db.SelectContext(ctx, &detail.Guardians, guardianQuery, id); err != nil {
		return nil, fmt.Errorf("load guardians: %w", err)
	}

	const contactQuery = `SELECT id, registration_id, number, label FROM registration_contacts WHERE registration_id = $1`
	if err := r.db.SelectContext(ctx, &detail.Contacts, contactQuery, id); err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	return &detail, nil
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations r
LEFT JOIN academic_terms t ON t.id = r.academic_term_id
LEFT JOIN year_levels y ON y.id = r.year_level_id`
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "r.deleted_at IS NULL")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.AcademicTermID != "" {
		conditions = append(conditions, fmt.Sprintf("r.academic_term_id = $%d", len(args)+1))
		args = append(args, filter.AcademicTermID)
	}
	if filter.YearLevelID != "" {
		conditions = append(conditions, fmt.Sprintf("r.year_level_id = $%d", len(args)+1))
		args = append(args, filter.YearLevelID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(r.student_no ILIKE $%d OR r.first_name ILIKE $%d OR r.last_name ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "r.created_at",
		"student_no": "r.student_no",
		"last_name":  "r.last_name",
		"status":     "r.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.created_at"
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

	query := fmt.Sprintf(`SELECT r.id, r.student_no, r.first_name, r.middle_name, r.last_name, r.suffix, r.birth_date,
r.gender, r.nationality, r.religion, r.address_line, r.barangay, r.city, r.province, r.postal_code,
r.payment_method, r.payment_ref_no, r.academic_term_id, r.year_level_id, r.status, r.created_at, r.updated_at,
r.deleted_at, t.name AS term_name, t.school_year, y.name AS year_level_name
%s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// CreateWithCode atomically creates the registration, its child rows, and
// flips the consumed code to INACTIVE while linking it to the new row. All
// effects commit or none do.
func (r *RegistrationRepository) CreateWithCode(ctx context.Context, reg *models.Registration, contacts []models.ContactNumber, guardians []models.Guardian, codeID string) (err error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := r.clock.Now()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO registrations (id, student_no, first_name, middle_name, last_name, suffix,
birth_date, gender, nationality, religion, address_line, barangay, city, province, postal_code,
payment_method, payment_ref_no, academic_term_id, year_level_id, status, created_at, updated_at)
VALUES (:id, :student_no, :first_name, :middle_name, :last_name, :suffix, :birth_date, :gender, :nationality,
:religion, :address_line, :barangay, :city, :province, :postal_code, :payment_method, :payment_ref_no,
:academic_term_id, :year_level_id, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, reg); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	const contactQuery = `INSERT INTO registration_contacts (id, registration_id, number, label) VALUES ($1, $2, $3, $4)`
	for i := range contacts {
		contacts[i].RegistrationID = reg.ID
		if contacts[i].ID == "" {
			contacts[i].ID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, contactQuery, contacts[i].ID, reg.ID, contacts[i].Number, contacts[i].Label); err != nil {
			return fmt.Errorf("insert contact number: %w", err)
		}
	}

	const guardianQuery = `INSERT INTO registration_guardians (id, registration_id, first_name, last_name, relationship, occupation, contact_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i := range guardians {
		guardians[i].RegistrationID = reg.ID
		if guardians[i].ID == "" {
			guardians[i].ID = uuid.NewString()
		}
		g := guardians[i]
		if _, err = tx.ExecContext(ctx, guardianQuery, g.ID, reg.ID, g.FirstName, g.LastName, g.Relationship, g.Occupation, g.ContactNumber); err != nil {
			return fmt.Errorf("insert guardian: %w", err)
		}
	}

	const consumeQuery = `UPDATE registration_codes SET status = $1, registration_id = $2 WHERE id = $3 AND status = $4`
	var res sql.Result
	if res, err = tx.ExecContext(ctx, consumeQuery, models.CodeStatusInactive, reg.ID, codeID, models.CodeStatusActive); err != nil {
		return fmt.Errorf("consume registration code: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		err = fmt.Errorf("registration code %s no longer active", codeID)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// Approve transitions a registration to APPROVED and mints its application
// code in one transaction.
func (r *RegistrationRepository) Approve(ctx context.Context, id string, appCode *models.RegistrationCode) (err error) {
	if appCode.ID == "" {
		appCode.ID = uuid.NewString()
	}
	if appCode.CreatedAt.IsZero() {
		appCode.CreatedAt = r.clock.Now()
	}
	appCode.RegistrationID = &id

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE registrations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND deleted_at IS NULL`
	var res sql.Result
	if res, err = tx.ExecContext(ctx, updateQuery, models.RegistrationStatusApproved, r.clock.Now(), id, models.RegistrationStatusPending); err != nil {
		return fmt.Errorf("approve registration: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		err = fmt.Errorf("registration %s is not pending", id)
		return err
	}

	const codeQuery = `INSERT INTO registration_codes (id, code, status, expiration_date, registration_id, application_id, created_at)
VALUES (:id, :code, :status, :expiration_date, :registration_id, :application_id, :created_at)`
	if _, err = tx.NamedExecContext(ctx, codeQuery, appCode); err != nil {
		return fmt.Errorf("insert application code: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approval: %w", err)
	}
	return nil
}

// UpdateStatus performs a simple status transition (rejection).
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, from, to models.RegistrationStatus) error {
	const query = `UPDATE registrations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, to, r.clock.Now(), id, from)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks a registration as deleted without removing the row.
func (r *RegistrationRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE registrations SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, r.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("soft delete registration: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
