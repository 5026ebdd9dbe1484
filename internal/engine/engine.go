// Package engine is the claim lifecycle core: two batch operations that move
// claims through open -> for_review -> {approved | rejected} and couple every
// decision to a balance mutation and a ledger entry.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/claims"
	"polisure.org/internal/ledger"
	"polisure.org/internal/obs"
	"polisure.org/internal/policy"
	"polisure.org/internal/stream"
)

// ErrUnpairedBatch means an evaluation batch lost its claim/decision
// alignment. Stores must refuse such a batch outright.
var ErrUnpairedBatch = errors.New("engine: claims and decisions are not paired")

// ClaimUpdate is one claim-row mutation inside a batch.
type ClaimUpdate struct {
	ID        string
	Status    claims.Status
	UpdatedAt time.Time
}

// EvaluationBatch is the full set of mutations produced by one evaluation
// run. Claims and Decisions are index-aligned: claim i pairs with decision i,
// which is how the balance/ledger pairing invariant is enforced structurally.
type EvaluationBatch struct {
	Claims    []ClaimUpdate
	Decisions []account.Decision
}

// Store is the transactional boundary the engine commits through. Both
// commit methods are all-or-nothing: a failure must leave every row in its
// pre-batch state.
type Store interface {
	ClaimsByStatus(ctx context.Context, status claims.Status) ([]claims.Claim, error)
	AccountByID(ctx context.Context, id string) (account.Account, error)
	PolicyByTier(ctx context.Context, tier policy.Tier) (policy.Policy, error)
	CommitPromotion(ctx context.Context, updates []ClaimUpdate) error
	CommitEvaluation(ctx context.Context, batch EvaluationBatch) ([]ledger.Transaction, error)
}

// PromotionResult reports what a promotion run did. Promoted == 0 is the
// observable no-op case, not an error.
type PromotionResult struct {
	Promoted int
}

// EvaluationResult reports what an evaluation run did.
type EvaluationResult struct {
	Evaluated int
	Approved  int
	Rejected  int
}

// Engine runs the periodic batches.
type Engine struct {
	store  Store
	events *stream.Stream
	now    func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithStream publishes a DecisionEvent for every evaluated claim after a
// successful commit.
func WithStream(s *stream.Stream) Option {
	return func(e *Engine) { e.events = s }
}

// New constructs Engine.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PromoteOpenClaims moves every open claim to for_review in one atomic
// batch. Soft-deleted claims are promoted too: deletion is a visibility
// concern, not a lifecycle gate.
func (e *Engine) PromoteOpenClaims(ctx context.Context) (PromotionResult, error) {
	open, err := e.store.ClaimsByStatus(ctx, claims.StatusOpen)
	if err != nil {
		return PromotionResult{}, err
	}
	if len(open) == 0 {
		obs.Info("promotion: no open claims", nil)
		return PromotionResult{}, nil
	}

	at := e.now().UTC()
	updates := make([]ClaimUpdate, 0, len(open))
	for _, c := range open {
		updates = append(updates, ClaimUpdate{ID: c.ID, Status: claims.StatusForReview, UpdatedAt: at})
	}
	if err := e.store.CommitPromotion(ctx, updates); err != nil {
		return PromotionResult{}, err
	}

	obs.RecordPromotion(len(updates))
	obs.Info("promotion: moved claims to review", map[string]any{"count": len(updates)})
	return PromotionResult{Promoted: len(updates)}, nil
}

// EvaluateClaims decides every for_review claim and commits claim, account
// and ledger mutations as one storage transaction. A policy lookup failure
// aborts the whole batch; nothing is committed.
func (e *Engine) EvaluateClaims(ctx context.Context) (EvaluationResult, error) {
	pending, err := e.store.ClaimsByStatus(ctx, claims.StatusForReview)
	if err != nil {
		return EvaluationResult{}, err
	}
	if len(pending) == 0 {
		obs.Info("evaluation: no claims for review", nil)
		return EvaluationResult{}, nil
	}

	at := e.now().UTC()
	batch := EvaluationBatch{
		Claims:    make([]ClaimUpdate, 0, len(pending)),
		Decisions: make([]account.Decision, 0, len(pending)),
	}
	var result EvaluationResult

	for _, c := range pending {
		owner, err := e.store.AccountByID(ctx, c.OwnerID)
		if err != nil {
			return EvaluationResult{}, err
		}
		pol, err := e.store.PolicyByTier(ctx, owner.PolicyTier)
		if err != nil {
			return EvaluationResult{}, err
		}

		if approve(c, pol) {
			batch.Claims = append(batch.Claims, ClaimUpdate{ID: c.ID, Status: claims.StatusApproved, UpdatedAt: at})
			batch.Decisions = append(batch.Decisions, account.Decision{
				OwnerID:      c.OwnerID,
				BalanceDelta: c.RequestedAmount,
				Paid:         c.RequestedAmount,
				Outcome:      ledger.StatusCompleted,
			})
			result.Approved++
		} else {
			batch.Claims = append(batch.Claims, ClaimUpdate{ID: c.ID, Status: claims.StatusRejected, UpdatedAt: at})
			batch.Decisions = append(batch.Decisions, account.Decision{
				OwnerID: c.OwnerID,
				Paid:    0,
				Outcome: ledger.StatusFailed,
			})
			result.Rejected++
		}
	}
	result.Evaluated = len(batch.Claims)

	txs, err := e.store.CommitEvaluation(ctx, batch)
	if err != nil {
		return EvaluationResult{}, err
	}

	obs.RecordEvaluation(result.Approved, result.Rejected)
	obs.Info("evaluation: batch committed", map[string]any{
		"evaluated": result.Evaluated,
		"approved":  result.Approved,
		"rejected":  result.Rejected,
	})

	if e.events != nil {
		for i, c := range pending {
			evt := stream.DecisionEvent{
				ClaimID:   c.ID,
				OwnerID:   c.OwnerID,
				ClaimType: string(c.Type),
				Outcome:   string(batch.Claims[i].Status),
				Amount:    batch.Decisions[i].Paid,
				Timestamp: at,
			}
			if i < len(txs) {
				evt.Reference = txs[i].Reference
			}
			e.events.Publish(evt)
		}
	}
	return result, nil
}

// approve applies the three-step rule chain, short-circuiting at the first
// failing check. Limits compare against the policy's fixed category ceiling,
// never against remaining balance, so decisions stay per-claim independent.
func approve(c claims.Claim, pol policy.Policy) bool {
	if c.RequestedAmount <= 0 {
		return false
	}
	doc := strings.ToLower(c.AttachedDocument)
	if !strings.Contains(doc, c.Type.DocumentKeyword()) {
		return false
	}
	return c.RequestedAmount <= limitFor(pol, c.Type)
}

func limitFor(pol policy.Policy, t claims.Type) int64 {
	switch t {
	case claims.TypeMedication:
		return pol.LimitMedication
	case claims.TypeHospitalTreatment:
		return pol.LimitHospitalTreatment
	case claims.TypeSurgery:
		return pol.LimitSurgery
	case claims.TypeDentalService:
		return pol.LimitDentalService
	}
	return 0
}
