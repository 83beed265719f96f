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

// SystemLogRepository persists the append-only system-activity log. No
// update or delete statements exist here on purpose.
type SystemLogRepository struct {
	db    *sqlx.DB
	clock localtime.Clock
}

// NewSystemLogRepository constructs the repository. A nil clock uses the
// school wall clock.
func NewSystemLogRepository(db *sqlx.DB, clock localtime.Clock) *SystemLogRepository {
	if clock == nil {
		clock = localtime.System
	}
	return &SystemLogRepository{db: db, clock: clock}
}

// Insert appends a log row.
func (r *SystemLogRepository) Insert(ctx context.Context, entry *models.SystemLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	const query = `INSERT INTO system_logs (id, log_number, timestamp, user_id, user_name, user_role,
action_category, action_type, action_sub_type, action_description, target_type, target_id, target_name,
old_values, new_values, changed_fields, metadata, status, severity_level, error_message, is_sensitive_data,
execution_time_ms, ip_address, user_agent, request_method, request_path, created_at)
VALUES (:id, :log_number, :timestamp, :user_id, :user_name, :user_role, :action_category, :action_type,
:action_sub_type, :action_description, :target_type, :target_id, :target_name, :old_values, :new_values,
:changed_fields, :metadata, :status, :severity_level, :error_message, :is_sensitive_data, :execution_time_ms,
:ip_address, :user_agent, :request_method, :request_path, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

// HighestLogNumber returns the greatest sequential log number under the
// given month prefix (e.g. "LOG-202506-"), or empty when none exist.
// Only canonical six-digit suffixes are considered; timestamp-fallback
// rows sort above every real sequence value and must never seed it.
func (r *SystemLogRepository) HighestLogNumber(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT log_number FROM system_logs WHERE log_number LIKE $1 AND log_number ~ '^LOG-[0-9]{6}-[0-9]{6}$' ORDER BY log_number DESC LIMIT 1`
	var number string
	if err := r.db.GetContext(ctx, &number, query, prefix+"%"); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("read highest log number: %w", err)
	}
	return number, nil
}

// List returns log entries for the console, newest first by default.
func (r *SystemLogRepository) List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, int, error) {
	base := "FROM system_logs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("action_category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity_level = $%d", len(args)+1))
		args = append(args, filter.Severity)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)+1))
		args = append(args, *filter.To)
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
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, log_number, timestamp, user_id, user_name, user_role, action_category,
action_type, action_sub_type, action_description, target_type, target_id, target_name, old_values, new_values,
changed_fields, metadata, status, severity_level, error_message, is_sensitive_data, execution_time_ms,
ip_address, user_agent, request_method, request_path, created_at
%s ORDER BY timestamp %s LIMIT %d OFFSET %d`, base, order, size, offset)

	var logs []models.SystemLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list system logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count system logs: %w", err)
	}
	return logs, total, nil
}
