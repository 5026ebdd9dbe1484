package pg

import (
	"context"
	"database/sql"
	"time"

	"polisure.org/internal/claims"
	"polisure.org/internal/ledger"
	"polisure.org/internal/report"
)

// Reports returns the row source summaries are computed from.
func (s *Store) Reports() report.Source { return reportSource{s.db} }

type reportSource struct{ db *sql.DB }

var _ report.Source = reportSource{}

func (v reportSource) ClaimsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]claims.Claim, error) {
	return claimStore{v.db}.query(ctx, `
		select `+claimColumns+` from claims
		where owner_id=$1 and not deleted and created_at between $2 and $3
		order by updated_at desc
	`, ownerID, from, to)
}

func (v reportSource) TransactionsByOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]ledger.Transaction, error) {
	rows, err := v.db.QueryContext(ctx, `
		select `+txColumns+` from transactions
		where owner_id=$1 and not deleted and created_at between $2 and $3
		order by updated_at desc
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
