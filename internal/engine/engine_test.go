package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
	"polisure.org/internal/engine"
	"polisure.org/internal/ids"
	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
	"polisure.org/internal/store/memstore"
	"polisure.org/internal/stream"
)

func newAccount(t *testing.T, s *memstore.Store, tier policy.Tier) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := account.Account{
		ID:         ids.New(),
		Email:      "holder@example.com",
		Role:       account.RolePolicyholder,
		Employed:   true,
		PolicyTier: tier,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Accounts().Create(context.Background(), &acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func newClaim(t *testing.T, s *memstore.Store, ownerID string, ct claims.Type, status claims.Status, amount int64, doc string) claims.Claim {
	t.Helper()
	now := time.Now().UTC()
	cl := claims.Claim{
		ID:               ids.New(),
		Type:             ct,
		Status:           status,
		RequestedAmount:  amount,
		AttachedDocument: doc,
		OwnerID:          ownerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Claims().Create(context.Background(), &cl); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	return cl
}

// failingCommits wraps a store so both commit methods fail, leaving reads
// intact.
type failingCommits struct {
	engine.Store
	err error
}

func (f failingCommits) CommitPromotion(ctx context.Context, updates []engine.ClaimUpdate) error {
	return f.err
}

func (f failingCommits) CommitEvaluation(ctx context.Context, batch engine.EvaluationBatch) ([]ledger.Transaction, error) {
	return nil, f.err
}

func TestPromotionMovesOpenClaimsOnce(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	cl := newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusOpen, 100, "medication_receipt.pdf")

	e := engine.New(s.Engine())
	res, err := e.PromoteOpenClaims(context.Background())
	if err != nil {
		t.Fatalf("PromoteOpenClaims: %v", err)
	}
	if res.Promoted != 1 {
		t.Fatalf("expected 1 promoted, got %d", res.Promoted)
	}
	got, _ := s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusForReview {
		t.Fatalf("expected for_review, got %s", got.Status)
	}

	// A second run finds nothing open and is a clean no-op.
	res, err = e.PromoteOpenClaims(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Promoted != 0 {
		t.Fatalf("expected no-op, promoted %d", res.Promoted)
	}
}

func TestPromotionIncludesSoftDeletedClaims(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	cl := newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusOpen, 100, "medication_receipt.pdf")
	if _, err := s.Claims().ToggleDeleted(context.Background(), cl.ID, time.Now().UTC()); err != nil {
		t.Fatalf("ToggleDeleted: %v", err)
	}

	e := engine.New(s.Engine())
	res, err := e.PromoteOpenClaims(context.Background())
	if err != nil {
		t.Fatalf("PromoteOpenClaims: %v", err)
	}
	if res.Promoted != 1 {
		t.Fatalf("soft-deleted open claim skipped: promoted %d", res.Promoted)
	}
}

func TestEvaluationApprovesWithinLimit(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	cl := newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 15000, "medication_receipt.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Evaluated != 1 || res.Approved != 1 || res.Rejected != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, _ := s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 15000 {
		t.Fatalf("expected balance 15000, got %d", acc.Balance)
	}
	txs, _ := s.Ledger().List(context.Background(), auth.Actor{Admin: true})
	if len(txs) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(txs))
	}
	if txs[0].Status != ledger.StatusCompleted || txs[0].Amount != 15000 {
		t.Fatalf("unexpected transaction: %+v", txs[0])
	}
}

func TestEvaluationRejectsZeroAmountWithAuditRow(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierLux)
	cl := newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 0, "medication_receipt.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Rejected != 1 {
		t.Fatalf("expected rejection, got %+v", res)
	}

	got, _ := s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 0 {
		t.Fatalf("rejection must not move balance, got %d", acc.Balance)
	}
	txs, _ := s.Ledger().List(context.Background(), auth.Actor{Admin: true})
	if len(txs) != 1 {
		t.Fatalf("rejection must still record one transaction, got %d", len(txs))
	}
	if txs[0].Status != ledger.StatusFailed || txs[0].Amount != 0 {
		t.Fatalf("unexpected audit transaction: %+v", txs[0])
	}
}

func TestEvaluationRejectsDocumentMismatch(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierLux)
	cl := newClaim(t, s, owner.ID, claims.TypeSurgery, claims.StatusForReview, 1000, "dental_service_report.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Rejected != 1 || res.Approved != 0 {
		t.Fatalf("expected rejection, got %+v", res)
	}
	got, _ := s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
}

func TestEvaluationRejectsOverLimit(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	// Comfort has no surgery coverage at all.
	newClaim(t, s, owner.ID, claims.TypeSurgery, claims.StatusForReview, 1, "surgery_report.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Rejected != 1 {
		t.Fatalf("expected rejection on zero coverage, got %+v", res)
	}
}

func TestEvaluationPerClaimIndependence(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierStandard)
	// Each claim fits the fixed dental ceiling (50000) on its own even though
	// the two together exceed it. Both must be approved.
	newClaim(t, s, owner.ID, claims.TypeDentalService, claims.StatusForReview, 40000, "dental_service_invoice.pdf")
	newClaim(t, s, owner.ID, claims.TypeDentalService, claims.StatusForReview, 40000, "dental_service_invoice.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Approved != 2 {
		t.Fatalf("expected both approved, got %+v", res)
	}
	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 80000 {
		t.Fatalf("expected balance 80000, got %d", acc.Balance)
	}
}

func TestEvaluationPairsEveryClaimWithOneTransaction(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierStandard)
	newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 10000, "medication_receipt.pdf")
	newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 0, "medication_receipt.pdf")
	newClaim(t, s, owner.ID, claims.TypeSurgery, claims.StatusForReview, 100000, "surgery_report.pdf")

	e := engine.New(s.Engine())
	res, err := e.EvaluateClaims(context.Background())
	if err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}
	if res.Evaluated != 3 {
		t.Fatalf("expected 3 evaluated, got %+v", res)
	}

	txs, _ := s.Ledger().List(context.Background(), auth.Actor{Admin: true})
	if len(txs) != 3 {
		t.Fatalf("expected one transaction per evaluated claim, got %d", len(txs))
	}
	var completedSum int64
	for _, tx := range txs {
		if tx.Status == ledger.StatusCompleted {
			completedSum += tx.Amount
		}
	}
	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != completedSum {
		t.Fatalf("balance %d does not match completed sum %d", acc.Balance, completedSum)
	}
}

func TestEvaluationAbortsBatchOnCommitFailure(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	cl := newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 100, "medication_receipt.pdf")

	boom := errors.New("storage down")
	e := engine.New(failingCommits{Store: s.Engine(), err: boom})
	if _, err := e.EvaluateClaims(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected commit error, got %v", err)
	}

	got, _ := s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusForReview {
		t.Fatalf("claim mutated despite failed commit: %s", got.Status)
	}
	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 0 {
		t.Fatalf("balance mutated despite failed commit: %d", acc.Balance)
	}
}

func TestEvaluationPublishesDecisionEvents(t *testing.T) {
	s := memstore.New()
	owner := newAccount(t, s, policy.TierComfort)
	newClaim(t, s, owner.ID, claims.TypeMedication, claims.StatusForReview, 100, "medication_receipt.pdf")

	events := stream.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := events.Subscribe(ctx)

	e := engine.New(s.Engine(), engine.WithStream(events))
	if _, err := e.EvaluateClaims(context.Background()); err != nil {
		t.Fatalf("EvaluateClaims: %v", err)
	}

	select {
	case evt := <-sub:
		if evt.Outcome != string(claims.StatusApproved) || evt.Amount != 100 {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Reference == "" {
			t.Fatal("event missing transaction reference")
		}
	case <-time.After(time.Second):
		t.Fatal("no decision event published")
	}
}
