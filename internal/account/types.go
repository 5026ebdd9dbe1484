package account

import (
	"context"
	"errors"
	"time"

	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
)

// Role is the account's access level.
type Role string

const (
	RoleAdmin        Role = "admin"
	RolePolicyholder Role = "policyholder"
)

// Account is a policyholder or admin with a mutable balance and one policy
// tier. Balance is in minor units and never goes below zero.
type Account struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	Role       Role        `json:"role"`
	Employed   bool        `json:"employed"`
	Balance    int64       `json:"balance"`
	PolicyTier policy.Tier `json:"policy_tier"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

var (
	ErrNotFound            = errors.New("account: not found")
	ErrInvalidInput        = errors.New("account: invalid input")
	ErrNotEmployed         = errors.New("account: not employed")
	ErrInsufficientBalance = errors.New("account: insufficient balance")
)

// Decision couples one balance mutation with exactly one ledger entry.
// BalanceDelta is applied to the owner's balance; Paid and Outcome describe
// the transaction recorded alongside it. The two always commit together.
type Decision struct {
	OwnerID       string
	BalanceDelta  int64
	Paid          int64
	Outcome       ledger.Status
	NewPolicyTier *policy.Tier
}

// Store describes persistence for accounts. Apply must be atomic: the
// account row and its paired ledger row change in one storage transaction
// or not at all.
type Store interface {
	Create(ctx context.Context, a *Account) error
	ByID(ctx context.Context, id string) (Account, error)
	Apply(ctx context.Context, d Decision) (Account, ledger.Transaction, error)
}
