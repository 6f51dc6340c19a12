package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
)

type transactionRepository struct {
	db *DB
}

var _ journal.Repository = (*transactionRepository)(nil) // interface compliance check

func NewTransactionRepository(db *DB) *transactionRepository {
	return &transactionRepository{db: db}
}

func (repo *transactionRepository) CreateTransaction(ctx context.Context, txn journal.Transaction, exec ...core.DBExecutor) (journal.Transaction, error) {
	defer repo.db.lock(exec)()
	for _, t := range repo.db.txns {
		if t.ReceiptID == txn.ReceiptID {
			return journal.Transaction{}, journal.ErrDuplicateReceipt
		}
	}
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	repo.db.txns[txn.ID] = txn
	return txn, nil
}

func (repo *transactionRepository) GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (journal.Transaction, error) {
	defer repo.db.lock(exec)()
	if txn, ok := repo.db.txns[id]; ok {
		return txn, nil
	}
	return journal.Transaction{}, journal.ErrNotFound
}

func (repo *transactionRepository) GetTransactionForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (journal.Transaction, error) {
	return repo.GetTransaction(ctx, id, exec...)
}

func (repo *transactionRepository) GetTransactionByReceipt(ctx context.Context, receiptID string, exec ...core.DBExecutor) (journal.Transaction, error) {
	defer repo.db.lock(exec)()
	for _, txn := range repo.db.txns {
		if txn.ReceiptID == receiptID {
			return txn, nil
		}
	}
	return journal.Transaction{}, journal.ErrNotFound
}

func (repo *transactionRepository) UpdateTransaction(ctx context.Context, txn journal.Transaction, exec ...core.DBExecutor) (journal.Transaction, error) {
	defer repo.db.lock(exec)()
	orig, ok := repo.db.txns[txn.ID]
	if !ok {
		return journal.Transaction{}, journal.ErrNotFound
	}
	if !orig.Pending() {
		return journal.Transaction{}, journal.ErrNotPending
	}
	// only the review fields change
	orig.LineID = txn.LineID
	orig.PaymentID = txn.PaymentID
	orig.Status = txn.Status
	orig.ReviewReason = txn.ReviewReason
	orig.UpdatedAt = txn.UpdatedAt
	repo.db.txns[txn.ID] = orig
	return orig, nil
}

func (repo *transactionRepository) QueryTransactions(ctx context.Context, filter *journal.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]journal.Transaction, error) {
	defer repo.db.lock(exec)()
	txns := make([]journal.Transaction, 0)
	for _, txn := range repo.db.txns {
		if filter != nil {
			switch {
			case filter.Status != "" && txn.Status != filter.Status:
				continue
			case filter.ReviewReason != "" && txn.ReviewReason != filter.ReviewReason:
				continue
			case !filter.CreatedFrom.IsZero() && txn.CreatedAt.Before(filter.CreatedFrom):
				continue
			case !filter.CreatedTo.IsZero() && txn.CreatedAt.After(filter.CreatedTo):
				continue
			}
		}
		txns = append(txns, txn)
	}

	sort.SliceStable(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(txns, func(i, j int) bool {
			var less bool
			switch ord.Field {
			case "created_at":
				less = txns[i].CreatedAt.Before(txns[j].CreatedAt)
				if !ord.Ascending {
					less = txns[j].CreatedAt.Before(txns[i].CreatedAt)
				}
			case "amount":
				less = txns[i].Amount < txns[j].Amount
				if !ord.Ascending {
					less = txns[j].Amount < txns[i].Amount
				}
			}
			return less
		})
	}
	return txns, nil
}
