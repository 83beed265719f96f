package models

import "time"

// LogCategory groups system-log entries by subsystem.
type LogCategory string

const (
	LogCategoryAuth         LogCategory = "AUTH"
	LogCategoryRegistration LogCategory = "REGISTRATION"
	LogCategoryAcademic     LogCategory = "ACADEMIC"
	LogCategoryUser         LogCategory = "USER"
	LogCategorySystem       LogCategory = "SYSTEM"
	LogCategorySecurity     LogCategory = "SECURITY"
)

// LogStatus is the outcome of the logged action.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "SUCCESS"
	LogStatusFailed  LogStatus = "FAILED"
	LogStatusWarning LogStatus = "WARNING"
)

// LogSeverity ranks the operational weight of an entry.
type LogSeverity string

const (
	SeverityLow      LogSeverity = "LOW"
	SeverityMedium   LogSeverity = "MEDIUM"
	SeverityHigh     LogSeverity = "HIGH"
	SeverityCritical LogSeverity = "CRITICAL"
)

// Common action types.
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionLogin   = "LOGIN"
	ActionLogout  = "LOGOUT"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"

	SubTypeSuspiciousActivity = "SUSPICIOUS_ACTIVITY"
	SubTypeDuplicateAttempt   = "DUPLICATE_ATTEMPT"
)

// Snapshot is a loose key/value bag carried in log entries. Values are
// limited to JSON-representable kinds: string, number, bool, nil,
// time.Time, []any and nested map[string]any.
type Snapshot map[string]any

// Actor identifies who performed a logged action. A nil actor means the
// system itself initiated it.
type Actor struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

// RequestContext carries ambient HTTP context explicitly so the audit
// logger stays a pure function of its inputs.
type RequestContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
}

// LogEntry is the service-level input to the audit logger.
type LogEntry struct {
	Actor           *Actor
	Category        LogCategory
	ActionType      string
	ActionSubType   string
	Description     string
	TargetType      string
	TargetID        string
	TargetName      string
	OldValues       Snapshot
	NewValues       Snapshot
	Metadata        Snapshot
	Status          LogStatus
	Severity        LogSeverity
	ErrorMessage    string
	IsSensitiveData bool
	ExecutionTimeMs int64
	Request         *RequestContext
}

// SystemLog is the persisted, append-only audit record. Rows are never
// updated or deleted.
type SystemLog struct {
	ID              string      `db:"id" json:"id"`
	LogNumber       string      `db:"log_number" json:"log_number"`
	Timestamp       time.Time   `db:"timestamp" json:"timestamp"`
	UserID          *string     `db:"user_id" json:"user_id,omitempty"`
	UserName        *string     `db:"user_name" json:"user_name,omitempty"`
	UserRole        *string     `db:"user_role" json:"user_role,omitempty"`
	ActionCategory  LogCategory `db:"action_category" json:"action_category"`
	ActionType      string      `db:"action_type" json:"action_type"`
	ActionSubType   string      `db:"action_sub_type" json:"action_sub_type,omitempty"`
	ActionDesc      string      `db:"action_description" json:"action_description"`
	TargetType      string      `db:"target_type" json:"target_type,omitempty"`
	TargetID        string      `db:"target_id" json:"target_id,omitempty"`
	TargetName      string      `db:"target_name" json:"target_name,omitempty"`
	OldValues       []byte      `db:"old_values" json:"old_values,omitempty"`
	NewValues       []byte      `db:"new_values" json:"new_values,omitempty"`
	ChangedFields   []byte      `db:"changed_fields" json:"changed_fields,omitempty"`
	Metadata        []byte      `db:"metadata" json:"metadata,omitempty"`
	Status          LogStatus   `db:"status" json:"status"`
	SeverityLevel   LogSeverity `db:"severity_level" json:"severity_level"`
	ErrorMessage    *string     `db:"error_message" json:"error_message,omitempty"`
	IsSensitiveData bool        `db:"is_sensitive_data" json:"is_sensitive_data"`
	ExecutionTimeMs *int64      `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	IPAddress       string      `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent       string      `db:"user_agent" json:"user_agent,omitempty"`
	RequestMethod   string      `db:"request_method" json:"request_method,omitempty"`
	RequestPath     string      `db:"request_path" json:"request_path,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// SystemLogFilter captures query criteria for the log console.
type SystemLogFilter struct {
	Category  LogCategory
	Status    LogStatus
	Severity  LogSeverity
	UserID    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortOrder string
}
