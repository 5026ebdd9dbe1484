// Package memstore is the in-process store used by tests and the dev mode of
// cmd/api. All domains share one core guarded by a single mutex, so the
// engine's commit methods are trivially atomic: they validate the whole batch
// under the lock and only then apply it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
	"polisure.org/internal/engine"
	"polisure.org/internal/ids"
	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
	"polisure.org/internal/report"
)

type core struct {
	mu       sync.RWMutex
	claims   map[string]*claims.Claim
	accounts map[string]*account.Account
	txs      map[string]*ledger.Transaction
	refs     map[string]struct{}
	policies map[policy.Tier]policy.Policy
}

// Store bundles the per-domain views over one shared core.
type Store struct {
	c *core
}

// New creates a store pre-seeded with the built-in policy catalog.
func New() *Store {
	c := &core{
		claims:   make(map[string]*claims.Claim),
		accounts: make(map[string]*account.Account),
		txs:      make(map[string]*ledger.Transaction),
		refs:     make(map[string]struct{}),
		policies: make(map[policy.Tier]policy.Policy),
	}
	for _, p := range policy.Seed(time.Now().UTC()) {
		c.policies[p.Tier] = p
	}
	return &Store{c: c}
}

// Claims returns the claim persistence view.
func (s *Store) Claims() claims.Store { return claimStore{s.c} }

// Accounts returns the account persistence view.
func (s *Store) Accounts() account.Store { return accountStore{s.c} }

// Ledger returns the transaction view.
func (s *Store) Ledger() ledger.Service { return ledgerService{s.c} }

// Policies returns the read-only policy catalog.
func (s *Store) Policies() policy.Catalog { return catalog{s.c} }

// Engine returns the batch-commit view used by the evaluation engine.
func (s *Store) Engine() engine.Store { return engineStore{s.c} }

// Reports returns the row source summaries are computed from.
func (s *Store) Reports() report.Source { return reportSource{s.c} }

// --- policy.Catalog ---

type catalog struct{ c *core }

var _ policy.Catalog = catalog{}

func (v catalog) ByTier(ctx context.Context, tier policy.Tier) (policy.Policy, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	return v.c.policyByTierLocked(tier)
}

func (v catalog) List(ctx context.Context) ([]policy.Policy, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	out := make([]policy.Policy, 0, len(v.c.policies))
	for _, p := range v.c.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (c *core) policyByTierLocked(tier policy.Tier) (policy.Policy, error) {
	p, ok := c.policies[tier]
	if !ok {
		return policy.Policy{}, policy.ErrNotFound
	}
	return p, nil
}

// --- account.Store ---

type accountStore struct{ c *core }

var _ account.Store = accountStore{}

func (v accountStore) Create(ctx context.Context, a *account.Account) error {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	cp := *a
	v.c.accounts[a.ID] = &cp
	return nil
}

func (v accountStore) ByID(ctx context.Context, id string) (account.Account, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	a, ok := v.c.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return *a, nil
}

func (v accountStore) Apply(ctx context.Context, d account.Decision) (account.Account, ledger.Transaction, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()

	if err := v.c.validateDecisionLocked(d); err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	now := time.Now().UTC()
	a := v.c.applyDecisionLocked(d, now)
	tx := v.c.appendLocked(d.OwnerID, d.Paid, d.Outcome, now)
	return a, tx, nil
}

func (c *core) validateDecisionLocked(d account.Decision) error {
	a, ok := c.accounts[d.OwnerID]
	if !ok {
		return account.ErrNotFound
	}
	if a.Balance+d.BalanceDelta < 0 {
		return account.ErrInsufficientBalance
	}
	if !d.Outcome.Valid() {
		return ledger.ErrInvalidStatus
	}
	return nil
}

// applyDecisionLocked mutates the account row. Callers must have validated
// the decision first.
func (c *core) applyDecisionLocked(d account.Decision, at time.Time) account.Account {
	a := c.accounts[d.OwnerID]
	a.Balance += d.BalanceDelta
	if d.NewPolicyTier != nil {
		a.PolicyTier = *d.NewPolicyTier
	}
	a.UpdatedAt = at
	return *a
}

// --- ledger.Service ---

type ledgerService struct{ c *core }

var _ ledger.Service = ledgerService{}

func (v ledgerService) Append(ctx context.Context, ownerID string, amount int64, status ledger.Status) (ledger.Transaction, error) {
	if amount < 0 {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if !status.Valid() {
		return ledger.Transaction{}, ledger.ErrInvalidStatus
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	if _, ok := v.c.accounts[ownerID]; !ok {
		return ledger.Transaction{}, account.ErrNotFound
	}
	return v.c.appendLocked(ownerID, amount, status, time.Now().UTC()), nil
}

func (v ledgerService) Get(ctx context.Context, actor auth.Actor, id string) (ledger.Transaction, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	tx, ok := v.c.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if !actor.Admin {
		if tx.OwnerID != actor.AccountID || tx.Deleted {
			return ledger.Transaction{}, ledger.ErrAccessDenied
		}
	}
	return *tx, nil
}

func (v ledgerService) List(ctx context.Context, actor auth.Actor) ([]ledger.Transaction, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	var out []ledger.Transaction
	for _, tx := range v.c.txs {
		if !actor.Admin {
			if tx.OwnerID != actor.AccountID || tx.Deleted {
				continue
			}
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (v ledgerService) ToggleDeleted(ctx context.Context, id string) (ledger.Transaction, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	tx, ok := v.c.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	tx.Deleted = !tx.Deleted
	tx.UpdatedAt = time.Now().UTC()
	return *tx, nil
}

// appendLocked creates a transaction with a reference code unique across the
// store, retrying on the rare 8-char collision. Callers hold the write lock.
func (c *core) appendLocked(ownerID string, amount int64, status ledger.Status, at time.Time) ledger.Transaction {
	ref := ledger.NewReference()
	for {
		if _, taken := c.refs[ref]; !taken {
			break
		}
		ref = ledger.NewReference()
	}
	c.refs[ref] = struct{}{}

	tx := &ledger.Transaction{
		ID:        ids.New(),
		Status:    status,
		Reference: ref,
		Amount:    amount,
		OwnerID:   ownerID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	c.txs[tx.ID] = tx
	return *tx
}

// --- claims.Store ---

type claimStore struct{ c *core }

var _ claims.Store = claimStore{}

func (v claimStore) Create(ctx context.Context, cl *claims.Claim) error {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	cp := *cl
	v.c.claims[cl.ID] = &cp
	return nil
}

func (v claimStore) ByID(ctx context.Context, id string) (claims.Claim, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	cl, ok := v.c.claims[id]
	if !ok {
		return claims.Claim{}, claims.ErrNotFound
	}
	return *cl, nil
}

func (v claimStore) All(ctx context.Context) ([]claims.Claim, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	return v.c.collectClaimsLocked(func(cl *claims.Claim) bool { return true }), nil
}

func (v claimStore) ByOwner(ctx context.Context, ownerID string) ([]claims.Claim, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	return v.c.collectClaimsLocked(func(cl *claims.Claim) bool {
		return cl.OwnerID == ownerID && !cl.Deleted
	}), nil
}

func (v claimStore) ByStatus(ctx context.Context, status claims.Status) ([]claims.Claim, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	return v.c.collectClaimsLocked(func(cl *claims.Claim) bool {
		return cl.Status == status
	}), nil
}

func (v claimStore) ToggleDeleted(ctx context.Context, id string, at time.Time) (claims.Claim, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	cl, ok := v.c.claims[id]
	if !ok {
		return claims.Claim{}, claims.ErrNotFound
	}
	cl.Deleted = !cl.Deleted
	cl.UpdatedAt = at
	return *cl, nil
}

func (c *core) collectClaimsLocked(keep func(*claims.Claim) bool) []claims.Claim {
	var out []claims.Claim
	for _, cl := range c.claims {
		if keep(cl) {
			out = append(out, *cl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// --- report.Source ---

type reportSource struct{ c *core }

var _ report.Source = reportSource{}

func (v reportSource) ClaimsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]claims.Claim, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	return v.c.collectClaimsLocked(func(cl *claims.Claim) bool {
		return cl.OwnerID == ownerID && !cl.Deleted && !cl.CreatedAt.Before(from) && !cl.CreatedAt.After(to)
	}), nil
}

func (v reportSource) TransactionsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]ledger.Transaction, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	var out []ledger.Transaction
	for _, tx := range v.c.txs {
		if tx.OwnerID != ownerID || tx.Deleted {
			continue
		}
		if tx.CreatedAt.Before(from) || tx.CreatedAt.After(to) {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// --- engine.Store ---

type engineStore struct{ c *core }

var _ engine.Store = engineStore{}

func (v engineStore) ClaimsByStatus(ctx context.Context, status claims.Status) ([]claims.Claim, error) {
	return claimStore{v.c}.ByStatus(ctx, status)
}

func (v engineStore) AccountByID(ctx context.Context, id string) (account.Account, error) {
	return accountStore{v.c}.ByID(ctx, id)
}

func (v engineStore) PolicyByTier(ctx context.Context, tier policy.Tier) (policy.Policy, error) {
	return catalog{v.c}.ByTier(ctx, tier)
}

// CommitPromotion applies a set of status updates all-or-nothing: every
// claim id is checked for existence before any row changes.
func (v engineStore) CommitPromotion(ctx context.Context, updates []engine.ClaimUpdate) error {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	for _, u := range updates {
		if _, ok := v.c.claims[u.ID]; !ok {
			return claims.ErrNotFound
		}
	}
	for _, u := range updates {
		cl := v.c.claims[u.ID]
		cl.Status = u.Status
		cl.UpdatedAt = u.UpdatedAt
	}
	return nil
}

// CommitEvaluation applies claim updates and their paired decisions as one
// unit. The whole batch is validated before the first mutation so a bad
// element leaves every row untouched.
func (v engineStore) CommitEvaluation(ctx context.Context, batch engine.EvaluationBatch) ([]ledger.Transaction, error) {
	if len(batch.Claims) != len(batch.Decisions) {
		return nil, engine.ErrUnpairedBatch
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()

	deltas := make(map[string]int64)
	for i, u := range batch.Claims {
		if _, ok := v.c.claims[u.ID]; !ok {
			return nil, claims.ErrNotFound
		}
		d := batch.Decisions[i]
		if _, ok := v.c.accounts[d.OwnerID]; !ok {
			return nil, account.ErrNotFound
		}
		if !d.Outcome.Valid() {
			return nil, ledger.ErrInvalidStatus
		}
		deltas[d.OwnerID] += d.BalanceDelta
	}
	for ownerID, delta := range deltas {
		if v.c.accounts[ownerID].Balance+delta < 0 {
			return nil, account.ErrInsufficientBalance
		}
	}

	now := time.Now().UTC()
	txs := make([]ledger.Transaction, 0, len(batch.Decisions))
	for i, u := range batch.Claims {
		cl := v.c.claims[u.ID]
		cl.Status = u.Status
		cl.UpdatedAt = u.UpdatedAt

		d := batch.Decisions[i]
		v.c.applyDecisionLocked(d, u.UpdatedAt)
		txs = append(txs, v.c.appendLocked(d.OwnerID, d.Paid, d.Outcome, now))
	}
	return txs, nil
}
