package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Amounts are in minor units (cents). No floats.

// Status is the terminal outcome recorded on a transaction.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether the status is a known outcome.
func (s Status) Valid() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction is an immutable financial record. Amount and status never
// change after creation; only the soft-delete flag may be toggled.
type Transaction struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted"`
}

// ReferenceLength is the size of a generated reference code.
const ReferenceLength = 8

var (
	ErrNotFound      = errors.New("ledger: not found")
	ErrAccessDenied  = errors.New("ledger: access denied")
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	ErrInvalidStatus = errors.New("ledger: invalid status")
)

// NewReference produces a candidate reference code. Codes are short, so the
// store must retry on a uniqueness collision.
func NewReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:ReferenceLength]
}
