package ledger

import (
	"context"

	"polisure.org/internal/auth"
)

// Service defines ledger operations exposed to peers. Append is the only way
// a transaction comes into existence outside an engine batch.
type Service interface {
	Append(ctx context.Context, ownerID string, amount int64, status Status) (Transaction, error)
	Get(ctx context.Context, actor auth.Actor, id string) (Transaction, error)
	List(ctx context.Context, actor auth.Actor) ([]Transaction, error)
	ToggleDeleted(ctx context.Context, id string) (Transaction, error)
}
