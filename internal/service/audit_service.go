package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/pkg/localtime"
)

// RedactedMarker replaces sensitive values before storage.
const RedactedMarker = "[REDACTED]"

const logNumberPrefix = "LOG"

// sensitiveKeys are matched case-insensitively as substrings of snapshot
// keys. The raw value never reaches the datastore.
var sensitiveKeys = []string{
	"password", "token", "secret", "key", "ssn", "creditcard",
	"bankaccount", "socialsecurity", "passcode", "pin",
}

type systemLogRepository interface {
	Insert(ctx context.Context, entry *models.SystemLog) error
	HighestLogNumber(ctx context.Context, prefix string) (string, error)
	List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, int, error)
}

// Alerter is the best-effort notification hook for CRITICAL entries. It
// must not block; failures are ignored.
type Alerter interface {
	Alert(ctx context.Context, entry *models.SystemLog)
}

// NopAlerter satisfies Alerter with a no-op.
type NopAlerter struct{}

// Alert implements Alerter.
func (NopAlerter) Alert(ctx context.Context, entry *models.SystemLog) {}

// LogAlerter surfaces CRITICAL entries through the application logger so
// they reach whatever alerting is attached to the log pipeline.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter constructs a LogAlerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

// Alert implements Alerter.
func (a *LogAlerter) Alert(ctx context.Context, entry *models.SystemLog) {
	a.logger.Error("critical activity recorded",
		zap.String("log_number", entry.LogNumber),
		zap.String("category", string(entry.ActionCategory)),
		zap.String("action", entry.ActionType),
		zap.String("description", entry.ActionDesc),
	)
}

// AuditService records every state-changing action as a structured system
// log entry. It is its own error boundary: Log never returns an error and
// never panics into the caller; failed writes degrade to the zap fallback
// sink.
type AuditService struct {
	repo    systemLogRepository
	alerter Alerter
	clock   localtime.Clock
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo systemLogRepository, alerter Alerter, clock localtime.Clock, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if alerter == nil {
		alerter = NopAlerter{}
	}
	if clock == nil {
		clock = localtime.System
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, alerter: alerter, clock: clock, metrics: metrics, logger: logger}
}

// Log appends an audit entry. Callers ignore the outcome by contract; the
// method completes via its internal error handling so that ordering stays
// deterministic for tests.
func (s *AuditService) Log(ctx context.Context, entry models.LogEntry) {
	record := s.build(ctx, entry)

	if err := s.repo.Insert(ctx, record); err != nil {
		s.logger.Error("system log write failed, falling back",
			zap.String("log_number", record.LogNumber),
			zap.String("category", string(record.ActionCategory)),
			zap.String("action", record.ActionType),
			zap.String("description", record.ActionDesc),
			zap.Error(err),
		)
		s.metrics.IncAuditWriteFailure()
		return
	}

	if record.SeverityLevel == models.SeverityCritical {
		s.alerter.Alert(ctx, record)
	}
}

// List exposes the log to the console. The log is append-only; no update
// or delete paths exist.
func (s *AuditService) List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list system logs: %w", err)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *AuditService) build(ctx context.Context, entry models.LogEntry) *models.SystemLog {
	now := s.clock.Now()

	record := &models.SystemLog{
		LogNumber:       s.nextLogNumber(ctx, now),
		Timestamp:       now,
		ActionCategory:  entry.Category,
		ActionType:      entry.ActionType,
		ActionSubType:   entry.ActionSubType,
		ActionDesc:      entry.Description,
		TargetType:      entry.TargetType,
		TargetID:        entry.TargetID,
		TargetName:      entry.TargetName,
		Status:          entry.Status,
		SeverityLevel:   entry.Severity,
		IsSensitiveData: entry.IsSensitiveData,
		CreatedAt:       now,
	}
	if record.Status == "" {
		record.Status = models.LogStatusSuccess
	}
	if record.SeverityLevel == "" {
		record.SeverityLevel = models.SeverityLow
	}
	if entry.Actor != nil {
		record.UserID = &entry.Actor.ID
		record.UserName = &entry.Actor.Name
		role := string(entry.Actor.Role)
		record.UserRole = &role
	}
	if entry.ErrorMessage != "" {
		msg := entry.ErrorMessage
		record.ErrorMessage = &msg
	}
	if entry.ExecutionTimeMs > 0 {
		ms := entry.ExecutionTimeMs
		record.ExecutionTimeMs = &ms
	}
	if entry.Request != nil {
		record.IPAddress = entry.Request.IPAddress
		record.UserAgent = entry.Request.UserAgent
		record.RequestMethod = entry.Request.Method
		record.RequestPath = entry.Request.Path
	}

	record.OldValues = marshalSnapshot(Redact(entry.OldValues))
	record.NewValues = marshalSnapshot(Redact(entry.NewValues))
	record.Metadata = marshalSnapshot(Redact(entry.Metadata))
	if entry.OldValues != nil || entry.NewValues != nil {
		if changed, err := json.Marshal(ChangedFields(entry.OldValues, entry.NewValues)); err == nil {
			record.ChangedFields = changed
		}
	}
	return record
}

// nextLogNumber derives "LOG-YYYYMM-NNNNNN" by incrementing the highest
// existing suffix for the month. A failed lookup degrades to a
// timestamp-derived suffix rather than blocking the write; strict
// monotonicity is not guaranteed under that fallback or under concurrent
// writers, and is not relied upon.
func (s *AuditService) nextLogNumber(ctx context.Context, now time.Time) string {
	monthPrefix := fmt.Sprintf("%s-%s-", logNumberPrefix, now.Format("200601"))

	highest, err := s.repo.HighestLogNumber(ctx, monthPrefix)
	if err != nil {
		s.logger.Warn("log number sequence read failed, using timestamp suffix", zap.Error(err))
		return monthPrefix + "9" + now.Format("150405")
	}

	// a suffix outside the six-digit format is a timestamp-fallback row
	// the repository should have filtered; never increment it
	seq := 1
	if highest != "" {
		raw := strings.TrimPrefix(highest, monthPrefix)
		if n, convErr := strconv.Atoi(raw); convErr == nil && len(raw) == 6 {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%06d", monthPrefix, seq)
}

// Redact returns a deep copy of the snapshot with sensitive-named keys
// replaced by the redaction marker. Nested maps and arrays are walked.
func Redact(snapshot models.Snapshot) models.Snapshot {
	if snapshot == nil {
		return nil
	}
	out := make(models.Snapshot, len(snapshot))
	for key, value := range snapshot {
		if isSensitiveKey(key) {
			out[key] = RedactedMarker
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case models.Snapshot:
		return map[string]any(Redact(v))
	case map[string]any:
		return map[string]any(Redact(models.Snapshot(v)))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowered, sensitive) {
			return true
		}
	}
	return false
}

// ChangedFields returns the sorted set of keys whose JSON-serialized
// values differ between the two snapshots, including keys present on only
// one side.
func ChangedFields(oldValues, newValues models.Snapshot) []string {
	keys := make(map[string]struct{}, len(oldValues)+len(newValues))
	for k := range oldValues {
		keys[k] = struct{}{}
	}
	for k := range newValues {
		keys[k] = struct{}{}
	}

	var changed []string
	for k := range keys {
		oldRaw, oldOK := oldValues[k]
		newRaw, newOK := newValues[k]
		if oldOK != newOK {
			changed = append(changed, k)
			continue
		}
		oldJSON, err1 := json.Marshal(oldRaw)
		newJSON, err2 := json.Marshal(newRaw)
		if err1 != nil || err2 != nil || !bytes.Equal(oldJSON, newJSON) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func marshalSnapshot(snapshot models.Snapshot) []byte {
	if snapshot == nil {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return raw
}
