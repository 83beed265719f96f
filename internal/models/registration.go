package models

import "time"

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

// PENDING registrations await a registrar decision; APPROVED and REJECTED
// are terminal. Soft delete is an orthogonal axis available from any state.
const (
	RegistrationStatusPending  RegistrationStatus = "PENDING"
	RegistrationStatusApproved RegistrationStatus = "APPROVED"
	RegistrationStatusRejected RegistrationStatus = "REJECTED"
)

// Registration captures an applicant's intake submission.
type Registration struct {
	ID             string             `db:"id" json:"id"`
	StudentNo      string             `db:"student_no" json:"student_no"`
	FirstName      string             `db:"first_name" json:"first_name"`
	MiddleName     string             `db:"middle_name" json:"middle_name,omitempty"`
	LastName       string             `db:"last_name" json:"last_name"`
	Suffix         string             `db:"suffix" json:"suffix,omitempty"`
	BirthDate      *time.Time         `db:"birth_date" json:"birth_date,omitempty"`
	Gender         string             `db:"gender" json:"gender,omitempty"`
	Nationality    string             `db:"nationality" json:"nationality,omitempty"`
	Religion       string             `db:"religion" json:"religion,omitempty"`
	AddressLine    string             `db:"address_line" json:"address_line,omitempty"`
	Barangay       string             `db:"barangay" json:"barangay,omitempty"`
	City           string             `db:"city" json:"city,omitempty"`
	Province       string             `db:"province" json:"province,omitempty"`
	PostalCode     string             `db:"postal_code" json:"postal_code,omitempty"`
	PaymentMethod  string             `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRefNo   string             `db:"payment_ref_no" json:"payment_ref_no,omitempty"`
	AcademicTermID string             `db:"academic_term_id" json:"academic_term_id"`
	YearLevelID    string             `db:"year_level_id" json:"year_level_id"`
	Status         RegistrationStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time         `db:"deleted_at" json:"deleted_at,omitempty"`
}

// FullName renders the applicant's display name.
func (r Registration) FullName() string {
	name := r.FirstName
	if r.MiddleName != "" {
		name += " " + r.MiddleName
	}
	name += " " + r.LastName
	if r.Suffix != "" {
		name += " " + r.Suffix
	}
	return name
}

// Guardian is a parent or guardian attached to a registration.
type Guardian struct {
	ID             string `db:"id" json:"id"`
	RegistrationID string `db:"registration_id" json:"registration_id"`
	FirstName      string `db:"first_name" json:"first_name,omitempty"`
	LastName       string `db:"last_name" json:"last_name,omitempty"`
	Relationship   string `db:"relationship" json:"relationship,omitempty"`
	Occupation     string `db:"occupation" json:"occupation,omitempty"`
	ContactNumber  string `db:"contact_number" json:"contact_number,omitempty"`
}

// ContactNumber is an applicant contact entry.
type ContactNumber struct {
	ID             string `db:"id" json:"id"`
	RegistrationID string `db:"registration_id" json:"registration_id"`
	Number         string `db:"number" json:"number"`
	Label          string `db:"label" json:"label,omitempty"`
}

// RegistrationDetail enriches Registration with reference-data names and
// the codes ever associated with it.
type RegistrationDetail struct {
	Registration
	TermName      string             `db:"term_name" json:"term_name"`
	SchoolYear    string             `db:"school_year" json:"school_year"`
	YearLevelName string             `db:"year_level_name" json:"year_level_name"`
	Guardians     []Guardian         `json:"guardians,omitempty"`
	Contacts      []ContactNumber    `json:"contacts,omitempty"`
	Codes         []RegistrationCode `json:"codes,omitempty"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	Status         RegistrationStatus
	AcademicTermID string
	YearLevelID    string
	Search         string
	IncludeDeleted bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
