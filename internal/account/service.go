package account

import (
	"context"
	"strings"
	"time"

	"polisure.org/internal/ids"
	"polisure.org/internal/ledger"
	"polisure.org/internal/obs"
	"polisure.org/internal/policy"
)

// Service exposes the account boundary: reads, balance credits and policy
// changes. Every balance mutation goes through Store.Apply so the ledger
// pairing invariant holds structurally.
type Service struct {
	store   Store
	catalog policy.Catalog
}

// NewService constructs Service.
func NewService(store Store, catalog policy.Catalog) *Service {
	return &Service{store: store, catalog: catalog}
}

// Register creates an account on the given tier with a zero balance.
func (s *Service) Register(ctx context.Context, email string, role Role, tier policy.Tier) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return Account{}, ErrInvalidInput
	}
	if !tier.Valid() {
		return Account{}, ErrInvalidInput
	}
	if _, err := s.catalog.ByTier(ctx, tier); err != nil {
		return Account{}, err
	}
	now := time.Now().UTC()
	acc := Account{
		ID:         ids.New(),
		Email:      email,
		Role:       role,
		Employed:   true,
		Balance:    0,
		PolicyTier: tier,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, &acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// ByID returns the account or ErrNotFound.
func (s *Service) ByID(ctx context.Context, id string) (Account, error) {
	return s.store.ByID(ctx, id)
}

// Credit increases the balance and records one completed transaction.
func (s *Service) Credit(ctx context.Context, id string, amount int64) (Account, ledger.Transaction, error) {
	if amount <= 0 {
		return Account{}, ledger.Transaction{}, ErrInvalidInput
	}
	if _, err := s.store.ByID(ctx, id); err != nil {
		return Account{}, ledger.Transaction{}, err
	}
	return s.store.Apply(ctx, Decision{
		OwnerID:      id,
		BalanceDelta: amount,
		Paid:         amount,
		Outcome:      ledger.StatusCompleted,
	})
}

// ChangePolicy moves the account to a new tier when the balance covers the
// tier price. An unaffordable change still appends a failed transaction of
// the price so the attempt leaves an audit trail.
func (s *Service) ChangePolicy(ctx context.Context, id string, tier policy.Tier) (Account, ledger.Transaction, error) {
	if !tier.Valid() {
		return Account{}, ledger.Transaction{}, ErrInvalidInput
	}
	acc, err := s.store.ByID(ctx, id)
	if err != nil {
		return Account{}, ledger.Transaction{}, err
	}
	pol, err := s.catalog.ByTier(ctx, tier)
	if err != nil {
		return Account{}, ledger.Transaction{}, err
	}

	if acc.Balance < pol.Price {
		updated, tx, applyErr := s.store.Apply(ctx, Decision{
			OwnerID: id,
			Paid:    pol.Price,
			Outcome: ledger.StatusFailed,
		})
		if applyErr != nil {
			return Account{}, ledger.Transaction{}, applyErr
		}
		obs.Info("policy change declined", map[string]any{
			"account": id,
			"tier":    string(tier),
			"price":   pol.Price,
		})
		return updated, tx, ErrInsufficientBalance
	}

	updated, tx, err := s.store.Apply(ctx, Decision{
		OwnerID:       id,
		BalanceDelta:  -pol.Price,
		Paid:          pol.Price,
		Outcome:       ledger.StatusCompleted,
		NewPolicyTier: &tier,
	})
	if err != nil {
		return Account{}, ledger.Transaction{}, err
	}
	obs.Info("policy changed", map[string]any{
		"account": id,
		"tier":    string(tier),
		"price":   pol.Price,
	})
	return updated, tx, nil
}
