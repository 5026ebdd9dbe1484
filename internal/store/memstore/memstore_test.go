package memstore

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
)

func seedAccount(t *testing.T, s *Store, balance int64, tier policy.Tier) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := account.Account{
		ID:         ids.New(),
		Email:      "holder@example.com",
		Role:       account.RolePolicyholder,
		Employed:   true,
		Balance:    balance,
		PolicyTier: tier,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Accounts().Create(context.Background(), &acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func seedClaim(t *testing.T, s *Store, ownerID string, status claims.Status, amount int64, doc string) claims.Claim {
	t.Helper()
	now := time.Now().UTC()
	cl := claims.Claim{
		ID:               ids.New(),
		Type:             claims.TypeMedication,
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

func TestPolicySeeded(t *testing.T) {
	s := New()
	pol, err := s.Policies().ByTier(context.Background(), policy.TierStandard)
	if err != nil {
		t.Fatalf("ByTier: %v", err)
	}
	if pol.Price != 9000 || pol.LimitSurgery != 150000 {
		t.Fatalf("unexpected standard policy: %+v", pol)
	}
	all, err := s.Policies().List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 seeded tiers, got %d", len(all))
	}
	if _, err := s.Policies().ByTier(context.Background(), policy.Tier("platinum")); !errors.Is(err, policy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyPairsBalanceAndLedger(t *testing.T) {
	s := New()
	acc := seedAccount(t, s, 100, policy.TierComfort)

	updated, tx, err := s.Accounts().Apply(context.Background(), account.Decision{
		OwnerID:      acc.ID,
		BalanceDelta: 250,
		Paid:         250,
		Outcome:      ledger.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if updated.Balance != 350 {
		t.Fatalf("expected balance 350, got %d", updated.Balance)
	}
	if tx.Amount != 250 || tx.Status != ledger.StatusCompleted {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if len(tx.Reference) != ledger.ReferenceLength {
		t.Fatalf("expected %d-char reference, got %q", ledger.ReferenceLength, tx.Reference)
	}
}

func TestApplyRejectsNegativeBalance(t *testing.T) {
	s := New()
	acc := seedAccount(t, s, 100, policy.TierComfort)

	_, _, err := s.Accounts().Apply(context.Background(), account.Decision{
		OwnerID:      acc.ID,
		BalanceDelta: -200,
		Paid:         200,
		Outcome:      ledger.StatusCompleted,
	})
	if !errors.Is(err, account.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The failed decision must leave no ledger row behind.
	admin := auth.Actor{Admin: true}
	txs, err := s.Ledger().List(context.Background(), admin)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected empty ledger, got %d rows", len(txs))
	}
	got, err := s.Accounts().ByID(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Balance != 100 {
		t.Fatalf("balance mutated on failed apply: %d", got.Balance)
	}
}

func TestLedgerVisibility(t *testing.T) {
	s := New()
	owner := seedAccount(t, s, 0, policy.TierComfort)
	other := seedAccount(t, s, 0, policy.TierComfort)

	tx, err := s.Ledger().Append(context.Background(), owner.ID, 500, ledger.StatusCompleted)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := s.Ledger().Get(context.Background(), auth.Actor{AccountID: other.ID}, tx.ID); !errors.Is(err, ledger.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for foreign actor, got %v", err)
	}
	if _, err := s.Ledger().Get(context.Background(), auth.Actor{AccountID: owner.ID}, tx.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	// Soft delete hides the row from the owner but not from admins.
	if _, err := s.Ledger().ToggleDeleted(context.Background(), tx.ID); err != nil {
		t.Fatalf("ToggleDeleted: %v", err)
	}
	if _, err := s.Ledger().Get(context.Background(), auth.Actor{AccountID: owner.ID}, tx.ID); !errors.Is(err, ledger.ErrAccessDenied) {
		t.Fatalf("expected deleted row hidden from owner, got %v", err)
	}
	got, err := s.Ledger().Get(context.Background(), auth.Actor{Admin: true}, tx.ID)
	if err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if !got.Deleted {
		t.Fatal("expected deleted flag set")
	}

	// A second toggle restores visibility.
	if _, err := s.Ledger().ToggleDeleted(context.Background(), tx.ID); err != nil {
		t.Fatalf("second ToggleDeleted: %v", err)
	}
	if _, err := s.Ledger().Get(context.Background(), auth.Actor{AccountID: owner.ID}, tx.ID); err != nil {
		t.Fatalf("owner read after restore: %v", err)
	}
}

func TestClaimListingFiltersAndOrders(t *testing.T) {
	s := New()
	owner := seedAccount(t, s, 0, policy.TierComfort)

	first := seedClaim(t, s, owner.ID, claims.StatusOpen, 100, "medication_receipt.pdf")
	time.Sleep(2 * time.Millisecond)
	second := seedClaim(t, s, owner.ID, claims.StatusOpen, 200, "medication_receipt.pdf")
	deleted := seedClaim(t, s, owner.ID, claims.StatusOpen, 300, "medication_receipt.pdf")
	if _, err := s.Claims().ToggleDeleted(context.Background(), deleted.ID, time.Now().UTC()); err != nil {
		t.Fatalf("ToggleDeleted: %v", err)
	}

	mine, err := s.Claims().ByOwner(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("ByOwner: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 visible claims, got %d", len(mine))
	}
	if mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Fatal("expected most-recently-updated first")
	}

	all, err := s.Claims().All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 claims for admin view, got %d", len(all))
	}
}

func TestCommitPromotionAtomic(t *testing.T) {
	s := New()
	owner := seedAccount(t, s, 0, policy.TierComfort)
	cl := seedClaim(t, s, owner.ID, claims.StatusOpen, 100, "medication_receipt.pdf")

	at := time.Now().UTC()
	updates := []engine.ClaimUpdate{
		{ID: cl.ID, Status: claims.StatusForReview, UpdatedAt: at},
		{ID: "missing", Status: claims.StatusForReview, UpdatedAt: at},
	}
	if err := s.Engine().CommitPromotion(context.Background(), updates); !errors.Is(err, claims.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := s.Claims().ByID(context.Background(), cl.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Status != claims.StatusOpen {
		t.Fatalf("claim mutated by failed batch: %s", got.Status)
	}

	if err := s.Engine().CommitPromotion(context.Background(), updates[:1]); err != nil {
		t.Fatalf("CommitPromotion: %v", err)
	}
	got, _ = s.Claims().ByID(context.Background(), cl.ID)
	if got.Status != claims.StatusForReview {
		t.Fatalf("expected for_review, got %s", got.Status)
	}
}

func TestCommitEvaluationAtomic(t *testing.T) {
	s := New()
	owner := seedAccount(t, s, 0, policy.TierComfort)
	good := seedClaim(t, s, owner.ID, claims.StatusForReview, 100, "medication_receipt.pdf")

	at := time.Now().UTC()
	batch := engine.EvaluationBatch{
		Claims: []engine.ClaimUpdate{
			{ID: good.ID, Status: claims.StatusApproved, UpdatedAt: at},
			{ID: "missing", Status: claims.StatusRejected, UpdatedAt: at},
		},
		Decisions: []account.Decision{
			{OwnerID: owner.ID, BalanceDelta: 100, Paid: 100, Outcome: ledger.StatusCompleted},
			{OwnerID: owner.ID, Paid: 0, Outcome: ledger.StatusFailed},
		},
	}
	if _, err := s.Engine().CommitEvaluation(context.Background(), batch); !errors.Is(err, claims.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	acc, _ := s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 0 {
		t.Fatalf("balance mutated by failed batch: %d", acc.Balance)
	}
	txs, _ := s.Ledger().List(context.Background(), auth.Actor{Admin: true})
	if len(txs) != 0 {
		t.Fatalf("ledger mutated by failed batch: %d rows", len(txs))
	}

	batch.Claims = batch.Claims[:1]
	batch.Decisions = batch.Decisions[:1]
	txs2, err := s.Engine().CommitEvaluation(context.Background(), batch)
	if err != nil {
		t.Fatalf("CommitEvaluation: %v", err)
	}
	if len(txs2) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs2))
	}
	acc, _ = s.Accounts().ByID(context.Background(), owner.ID)
	if acc.Balance != 100 {
		t.Fatalf("expected balance 100, got %d", acc.Balance)
	}
}

func TestCommitEvaluationRejectsUnpairedBatch(t *testing.T) {
	s := New()
	batch := engine.EvaluationBatch{
		Claims: []engine.ClaimUpdate{{ID: "x", Status: claims.StatusApproved}},
	}
	if _, err := s.Engine().CommitEvaluation(context.Background(), batch); !errors.Is(err, engine.ErrUnpairedBatch) {
		t.Fatalf("expected ErrUnpairedBatch, got %v", err)
	}
}
