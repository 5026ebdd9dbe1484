package claims_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
	"polisure.org/internal/ids"
	"polisure.org/internal/policy"
	"polisure.org/internal/store/memstore"
)

func newFixture(t *testing.T) (*claims.Service, *memstore.Store, account.Account) {
	t.Helper()
	store := memstore.New()
	now := time.Now().UTC()
	acc := account.Account{
		ID:         ids.New(),
		Email:      "holder@example.com",
		Role:       account.RolePolicyholder,
		Employed:   true,
		PolicyTier: policy.TierComfort,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.Accounts().Create(context.Background(), &acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return claims.NewService(store.Claims(), store.Accounts()), store, acc
}

func TestSubmitCreatesOpenClaim(t *testing.T) {
	svc, _, acc := newFixture(t)

	claim, err := svc.Submit(context.Background(), claims.Submission{
		Type:             claims.TypeMedication,
		RequestedAmount:  5000,
		AttachedDocument: "  medication_receipt.pdf  ",
		Description:      "antibiotics",
		OwnerID:          acc.ID,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if claim.Status != claims.StatusOpen {
		t.Fatalf("expected open claim, got %s", claim.Status)
	}
	if claim.AttachedDocument != "medication_receipt.pdf" {
		t.Fatalf("document not trimmed: %q", claim.AttachedDocument)
	}
	if claim.ID == "" || claim.CreatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", claim)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, acc := newFixture(t)

	cases := []struct {
		name string
		sub  claims.Submission
		want error
	}{
		{"unknown type", claims.Submission{Type: "haircut", RequestedAmount: 1, AttachedDocument: "doc.pdf", OwnerID: acc.ID}, claims.ErrInvalidInput},
		{"negative amount", claims.Submission{Type: claims.TypeSurgery, RequestedAmount: -1, AttachedDocument: "doc.pdf", OwnerID: acc.ID}, claims.ErrInvalidInput},
		{"blank document", claims.Submission{Type: claims.TypeSurgery, RequestedAmount: 1, AttachedDocument: "   ", OwnerID: acc.ID}, claims.ErrInvalidInput},
		{"missing owner", claims.Submission{Type: claims.TypeSurgery, RequestedAmount: 1, AttachedDocument: "doc.pdf"}, claims.ErrInvalidInput},
		{"unknown owner", claims.Submission{Type: claims.TypeSurgery, RequestedAmount: 1, AttachedDocument: "doc.pdf", OwnerID: "ghost"}, account.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tc.sub); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Zero is accepted at submission and rejected later by evaluation.
	if _, err := svc.Submit(context.Background(), claims.Submission{
		Type:             claims.TypeMedication,
		RequestedAmount:  0,
		AttachedDocument: "doc.pdf",
		OwnerID:          acc.ID,
	}); err != nil {
		t.Fatalf("zero amount must be accepted: %v", err)
	}
}

func TestGetScoping(t *testing.T) {
	svc, _, acc := newFixture(t)

	claim, err := svc.Submit(context.Background(), claims.Submission{
		Type:             claims.TypeMedication,
		RequestedAmount:  100,
		AttachedDocument: "medication_receipt.pdf",
		OwnerID:          acc.ID,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Get(context.Background(), auth.Actor{AccountID: "someone-else"}, claim.ID); !errors.Is(err, claims.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := svc.Get(context.Background(), auth.Actor{AccountID: acc.ID}, claim.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	// Once hidden, the owner loses single-item access too; admins keep it.
	if _, err := svc.ToggleDelete(context.Background(), claim.ID); err != nil {
		t.Fatalf("ToggleDelete: %v", err)
	}
	if _, err := svc.Get(context.Background(), auth.Actor{AccountID: acc.ID}, claim.ID); !errors.Is(err, claims.ErrAccessDenied) {
		t.Fatalf("expected hidden claim denied to owner, got %v", err)
	}
	got, err := svc.Get(context.Background(), auth.Actor{Admin: true}, claim.ID)
	if err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if !got.Deleted {
		t.Fatal("expected deleted flag set")
	}
}

func TestToggleDeleteIsIdempotentFlip(t *testing.T) {
	svc, _, acc := newFixture(t)

	claim, err := svc.Submit(context.Background(), claims.Submission{
		Type:             claims.TypeMedication,
		RequestedAmount:  100,
		AttachedDocument: "medication_receipt.pdf",
		OwnerID:          acc.ID,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	hidden, err := svc.ToggleDelete(context.Background(), claim.ID)
	if err != nil || !hidden.Deleted {
		t.Fatalf("first toggle: %+v err=%v", hidden, err)
	}
	restored, err := svc.ToggleDelete(context.Background(), claim.ID)
	if err != nil || restored.Deleted {
		t.Fatalf("second toggle: %+v err=%v", restored, err)
	}
	if restored.UpdatedAt.Before(claim.UpdatedAt) {
		t.Fatal("expected updated-at refresh on toggle")
	}
}
