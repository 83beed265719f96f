package models

import "time"

// CodeStatus represents the usability of a registration code.
type CodeStatus string

// A code is ACTIVE until the transaction that consumes it flips it to
// INACTIVE. Expiry is lazy: an expired code may still read ACTIVE and must
// be rejected by validators at check time.
const (
	CodeStatusActive   CodeStatus = "ACTIVE"
	CodeStatusInactive CodeStatus = "INACTIVE"
)

// RegistrationCode is a short-lived, single-use token gating access to the
// application form. REG- codes admit an applicant to the intake form; APP-
// codes are minted on approval for the next stage.
type RegistrationCode struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	Status         CodeStatus `db:"status" json:"status"`
	ExpirationDate *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	RegistrationID *string    `db:"registration_id" json:"registration_id,omitempty"`
	ApplicationID  *string    `db:"application_id" json:"application_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// CodeValidation is the outcome of a non-mutating code check.
type CodeValidation struct {
	Valid          bool    `json:"valid"`
	Code           string  `json:"code"`
	RegistrationID *string `json:"registration_id,omitempty"`
	ApplicationID  *string `json:"application_id,omitempty"`
}

// CodeFilter captures filtering criteria for listing codes.
type CodeFilter struct {
	Status    CodeStatus
	Prefix    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
