package journal

import (
	"context"

	"github.com/trezcool/masomo-fees/core"
)

type (
	Repository interface {
		CreateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (Transaction, error)
		// GetTransactionForUpdate locks the row until the surrounding transaction ends.
		GetTransactionForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (Transaction, error)
		GetTransactionByReceipt(ctx context.Context, receiptID string, exec ...core.DBExecutor) (Transaction, error)
		UpdateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		QueryTransactions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Transaction, error)
	}

	// MatchHook is notified after a phone-matched payment has been committed.
	MatchHook interface {
		PhoneMatched(ctx context.Context, studentID, phone string) error
	}
)
