package claims

import (
	"errors"
	"time"
)

// Type is the claim category. Each category maps to one coverage limit on
// the owner's policy and one document keyword.
type Type string

const (
	TypeMedication        Type = "medication"
	TypeHospitalTreatment Type = "hospital_treatment"
	TypeSurgery           Type = "surgery"
	TypeDentalService     Type = "dental_service"
)

// Valid reports whether the type is a known category.
func (t Type) Valid() bool {
	switch t {
	case TypeMedication, TypeHospitalTreatment, TypeSurgery, TypeDentalService:
		return true
	}
	return false
}

// DocumentKeyword returns the substring the attached document must contain
// (case-insensitive) for the claim to pass the document check.
func (t Type) DocumentKeyword() string {
	switch t {
	case TypeMedication:
		return "medication"
	case TypeHospitalTreatment:
		return "hospital_treatment"
	case TypeSurgery:
		return "surgery"
	case TypeDentalService:
		return "dental_service"
	}
	return ""
}

// Status is the claim lifecycle state. Transitions are monotonic:
// open -> for_review -> {approved | rejected}, and terminal states never
// transition again.
type Status string

const (
	StatusOpen      Status = "open"
	StatusForReview Status = "for_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Claim is a reimbursement request. Owner and requested amount are fixed at
// creation; only status, updated-at and the soft-delete flag ever change.
type Claim struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	Status           Status    `json:"status"`
	RequestedAmount  int64     `json:"requested_amount"`
	AttachedDocument string    `json:"attached_document"`
	Description      string    `json:"description,omitempty"`
	OwnerID          string    `json:"owner_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Deleted          bool      `json:"deleted"`
}

var (
	ErrNotFound     = errors.New("claims: not found")
	ErrAccessDenied = errors.New("claims: access denied")
	ErrInvalidInput = errors.New("claims: invalid input")
)
