package models

import "time"

// TermStatus represents the state of an academic term.
type TermStatus string

const (
	TermStatusActive   TermStatus = "ACTIVE"
	TermStatusUpcoming TermStatus = "UPCOMING"
	TermStatusClosed   TermStatus = "CLOSED"
)

// AcademicTerm models an enrollment period. Registrations may only be
// submitted against an ACTIVE term.
type AcademicTerm struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	SchoolYear string     `db:"school_year" json:"school_year"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	EndDate    time.Time  `db:"end_date" json:"end_date"`
	Status     TermStatus `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// StartYear is the term-start calendar year used in derived student numbers.
func (t AcademicTerm) StartYear() int {
	return t.StartDate.Year()
}

// TermFilter defines filters supported by term list endpoints.
type TermFilter struct {
	SchoolYear string
	Status     TermStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
