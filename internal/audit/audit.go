package audit

import (
	"context"

	"github.com/apexrewards/pointsledger/internal/models"
)

// Publisher receives every committed ledger mutation for the downstream
// audit trail. Implementations must not fail the originating operation:
// delivery problems are logged, never returned.
type Publisher interface {
	TransactionCreated(ctx context.Context, tr models.Transaction)
	TransactionProcessed(ctx context.Context, tr models.Transaction)
	TransactionFlagged(ctx context.Context, tr models.Transaction)
}

// Noop is used when no audit broker is configured
type Noop struct{}

func (Noop) TransactionCreated(context.Context, models.Transaction) {}

func (Noop) TransactionProcessed(context.Context, models.Transaction) {}

func (Noop) TransactionFlagged(context.Context, models.Transaction) {}
