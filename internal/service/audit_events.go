package service

import (
	"context"
	"time"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// Category-specific builders fix the action category and a default
// severity so call sites stay short. Callers may override any field on
// the returned entry before logging.

// AuthEvent builds an AUTH-category entry.
func AuthEvent(actionType, description string, actor *models.Actor) models.LogEntry {
	return models.LogEntry{
		Category:    models.LogCategoryAuth,
		ActionType:  actionType,
		Description: description,
		Actor:       actor,
		Status:      models.LogStatusSuccess,
		Severity:    models.SeverityLow,
	}
}

// RegistrationEvent builds a REGISTRATION-category entry.
func RegistrationEvent(actionType, description string, actor *models.Actor) models.LogEntry {
	return models.LogEntry{
		Category:    models.LogCategoryRegistration,
		ActionType:  actionType,
		Description: description,
		Actor:       actor,
		Status:      models.LogStatusSuccess,
		Severity:    models.SeverityMedium,
	}
}

// AcademicEvent builds an ACADEMIC-category entry for reference-data
// changes (terms, year levels).
func AcademicEvent(actionType, description string, actor *models.Actor) models.LogEntry {
	return models.LogEntry{
		Category:    models.LogCategoryAcademic,
		ActionType:  actionType,
		Description: description,
		Actor:       actor,
		Status:      models.LogStatusSuccess,
		Severity:    models.SeverityMedium,
	}
}

// UserEvent builds a USER-category entry.
func UserEvent(actionType, description string, actor *models.Actor) models.LogEntry {
	return models.LogEntry{
		Category:    models.LogCategoryUser,
		ActionType:  actionType,
		Description: description,
		Actor:       actor,
		Status:      models.LogStatusSuccess,
		Severity:    models.SeverityMedium,
	}
}

// SecurityEvent builds a SECURITY-category entry. Defaults to HIGH.
func SecurityEvent(subType, description string, actor *models.Actor) models.LogEntry {
	return models.LogEntry{
		Category:      models.LogCategorySecurity,
		ActionType:    models.ActionCreate,
		ActionSubType: subType,
		Description:   description,
		Actor:         actor,
		Status:        models.LogStatusWarning,
		Severity:      models.SeverityHigh,
	}
}

// SystemEvent builds a SYSTEM-category entry for actions with no human
// actor.
func SystemEvent(actionType, description string) models.LogEntry {
	return models.LogEntry{
		Category:    models.LogCategorySystem,
		ActionType:  actionType,
		Description: description,
		Status:      models.LogStatusSuccess,
		Severity:    models.SeverityLow,
	}
}

// Timed runs fn, measures its duration, and logs the entry with the
// outcome and executionTimeMs filled in. The operation's error is
// returned unchanged; logging follows the usual never-fail contract.
func (s *AuditService) Timed(ctx context.Context, entry models.LogEntry, fn func() error) error {
	start := time.Now()
	err := fn()
	entry.ExecutionTimeMs = time.Since(start).Milliseconds()
	if entry.ExecutionTimeMs == 0 {
		entry.ExecutionTimeMs = 1
	}
	if err != nil {
		entry.Status = models.LogStatusFailed
		entry.ErrorMessage = err.Error()
	}
	s.Log(ctx, entry)
	return err
}
