package claims

import (
	"context"
	"strings"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/auth"
	"polisure.org/internal/ids"
)

// Store describes claim persistence. Listing methods return claims ordered
// by updated-at descending; ByOwner excludes soft-deleted claims.
type Store interface {
	Create(ctx context.Context, c *Claim) error
	ByID(ctx context.Context, id string) (Claim, error)
	All(ctx context.Context) ([]Claim, error)
	ByOwner(ctx context.Context, ownerID string) ([]Claim, error)
	ByStatus(ctx context.Context, status Status) ([]Claim, error)
	ToggleDeleted(ctx context.Context, id string, at time.Time) (Claim, error)
}

// AccountLookup resolves the submitting account.
type AccountLookup interface {
	ByID(ctx context.Context, id string) (account.Account, error)
}

// Submission is the claim-submission boundary payload.
type Submission struct {
	Type             Type
	RequestedAmount  int64
	AttachedDocument string
	Description      string
	OwnerID          string
}

// Service implements submission, visibility and soft-delete over a Store.
// Category and limit checks are deliberately absent here: creation is cheap
// and synchronous, evaluation happens in the batch engine.
type Service struct {
	store    Store
	accounts AccountLookup
}

// NewService constructs Service.
func NewService(store Store, accounts AccountLookup) *Service {
	return &Service{store: store, accounts: accounts}
}

// Submit validates presence and non-negativity and stores an open claim.
func (s *Service) Submit(ctx context.Context, sub Submission) (Claim, error) {
	if !sub.Type.Valid() {
		return Claim{}, ErrInvalidInput
	}
	if sub.RequestedAmount < 0 {
		return Claim{}, ErrInvalidInput
	}
	if strings.TrimSpace(sub.AttachedDocument) == "" {
		return Claim{}, ErrInvalidInput
	}
	if strings.TrimSpace(sub.OwnerID) == "" {
		return Claim{}, ErrInvalidInput
	}
	if _, err := s.accounts.ByID(ctx, sub.OwnerID); err != nil {
		return Claim{}, err
	}

	now := time.Now().UTC()
	claim := Claim{
		ID:               ids.New(),
		Type:             sub.Type,
		Status:           StatusOpen,
		RequestedAmount:  sub.RequestedAmount,
		AttachedDocument: strings.TrimSpace(sub.AttachedDocument),
		Description:      strings.TrimSpace(sub.Description),
		OwnerID:          sub.OwnerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, &claim); err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// List returns every claim for an admin, or the actor's own non-deleted
// claims ordered most-recently-updated first.
func (s *Service) List(ctx context.Context, actor auth.Actor) ([]Claim, error) {
	if actor.Admin {
		return s.store.All(ctx)
	}
	return s.store.ByOwner(ctx, actor.AccountID)
}

// Get returns a single claim. Non-admin actors may only see their own
// non-deleted claims.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (Claim, error) {
	claim, err := s.store.ByID(ctx, id)
	if err != nil {
		return Claim{}, err
	}
	if !actor.Admin {
		if claim.OwnerID != actor.AccountID || claim.Deleted {
			return Claim{}, ErrAccessDenied
		}
	}
	return claim, nil
}

// ToggleDelete flips the soft-delete flag and refreshes updated-at.
func (s *Service) ToggleDelete(ctx context.Context, id string) (Claim, error) {
	return s.store.ToggleDeleted(ctx, id, time.Now().UTC())
}
