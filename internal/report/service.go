package report

import (
	"context"
	"time"

	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
	"polisure.org/internal/ledger"
	"polisure.org/internal/obs"
)

// Source provides the rows a summary is computed from.
type Source interface {
	ClaimsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]claims.Claim, error)
	TransactionsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]ledger.Transaction, error)
}

// Service composes summaries from local data and manages them on the
// reporting peer.
type Service struct {
	src    Source
	client *Client
}

// NewService constructs Service.
func NewService(src Source, client *Client) *Service {
	return &Service{src: src, client: client}
}

// BuildSummary computes the rollup for one account over [from, to] and
// stores it on the reporting service.
func (s *Service) BuildSummary(ctx context.Context, ownerID string, from, to time.Time) (Summary, error) {
	cls, err := s.src.ClaimsByOwnerBetween(ctx, ownerID, from, to)
	if err != nil {
		return Summary{}, err
	}
	txs, err := s.src.TransactionsByOwnerBetween(ctx, ownerID, from, to)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{OwnerID: ownerID, From: from, To: to}
	for _, c := range cls {
		sum.ClaimsTotal++
		sum.AmountRequested += c.RequestedAmount
		switch c.Status {
		case claims.StatusApproved:
			sum.ClaimsApproved++
		case claims.StatusRejected:
			sum.ClaimsRejected++
		}
	}
	for _, tx := range txs {
		sum.TransactionsTotal++
		if tx.Status == ledger.StatusCompleted {
			sum.AmountPaid += tx.Amount
		}
	}

	created, err := s.client.Create(ctx, sum)
	if err != nil {
		obs.Error("report: create summary failed", map[string]any{
			"owner": ownerID,
			"error": err.Error(),
		})
		return Summary{}, err
	}
	return created, nil
}

// LastSummaries returns the most recent summaries visible to the actor.
func (s *Service) LastSummaries(ctx context.Context, actor auth.Actor, limit int) ([]Summary, error) {
	all, err := s.client.Last(ctx, limit)
	if err != nil {
		return nil, err
	}
	if actor.Admin {
		return all, nil
	}
	var out []Summary
	for _, sum := range all {
		if sum.OwnerID == actor.AccountID {
			out = append(out, sum)
		}
	}
	return out, nil
}

// SummaryByID fetches one summary; non-admin actors may only read their own.
func (s *Service) SummaryByID(ctx context.Context, actor auth.Actor, id string) (Summary, error) {
	sum, err := s.client.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	if !actor.Admin && sum.OwnerID != actor.AccountID {
		return Summary{}, ErrAccessDenied
	}
	return sum, nil
}

// DeleteSummary removes a summary after the same ownership check as reads.
func (s *Service) DeleteSummary(ctx context.Context, actor auth.Actor, id string) error {
	if _, err := s.SummaryByID(ctx, actor, id); err != nil {
		return err
	}
	return s.client.Delete(ctx, id)
}
