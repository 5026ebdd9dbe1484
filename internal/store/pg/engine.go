package pg

import (
	"context"
	"database/sql"

	"polisure.org/internal/account"
	"polisure.org/internal/claims"
	"polisure.org/internal/engine"
	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
)

// Engine returns the batch-commit view used by the evaluation engine.
func (s *Store) Engine() engine.Store { return engineStore{s.db} }

type engineStore struct{ db *sql.DB }

var _ engine.Store = engineStore{}

func (v engineStore) ClaimsByStatus(ctx context.Context, status claims.Status) ([]claims.Claim, error) {
	return claimStore{v.db}.ByStatus(ctx, status)
}

func (v engineStore) AccountByID(ctx context.Context, id string) (account.Account, error) {
	return accountStore{v.db}.ByID(ctx, id)
}

func (v engineStore) PolicyByTier(ctx context.Context, tier policy.Tier) (policy.Policy, error) {
	return catalog{v.db}.ByTier(ctx, tier)
}

// CommitPromotion updates every claim row in one database transaction.
func (v engineStore) CommitPromotion(ctx context.Context, updates []engine.ClaimUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx, `update claims set status=$2, updated_at=$3 where id=$1`, u.ID, u.Status, u.UpdatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return claims.ErrNotFound
		}
	}
	return tx.Commit()
}

// CommitEvaluation applies the claim updates and their paired decisions in
// one database transaction. Any failure rolls back the whole batch.
func (v engineStore) CommitEvaluation(ctx context.Context, batch engine.EvaluationBatch) ([]ledger.Transaction, error) {
	if len(batch.Claims) != len(batch.Decisions) {
		return nil, engine.ErrUnpairedBatch
	}
	if len(batch.Claims) == 0 {
		return nil, nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	txs := make([]ledger.Transaction, 0, len(batch.Claims))
	for i, u := range batch.Claims {
		res, err := tx.ExecContext(ctx, `update claims set status=$2, updated_at=$3 where id=$1`, u.ID, u.Status, u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, claims.ErrNotFound
		}

		_, ltx, err := applyDecision(ctx, tx, batch.Decisions[i], u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		txs = append(txs, ltx)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txs, nil
}
