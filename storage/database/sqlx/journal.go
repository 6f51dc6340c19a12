package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
)

const (
	transactionColumns = `id, fee_ledger_line_id, payment_id, phone, amount, external_receipt_id, channel, reference,
	payer_name, status, review_reason, raw_payload, created_at, updated_at`
	receiptConstraint = "inbound_transactions_receipt_key"
)

var transactionOrderings = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"status":     "status",
	"reason":     "review_reason",
}

type transactionRow struct {
	ID           string      `db:"id"`
	LineID       null.String `db:"fee_ledger_line_id"`
	PaymentID    null.String `db:"payment_id"`
	Phone        string      `db:"phone"`
	Amount       int64       `db:"amount"`
	ReceiptID    string      `db:"external_receipt_id"`
	Channel      string      `db:"channel"`
	Reference    string      `db:"reference"`
	PayerName    string      `db:"payer_name"`
	Status       string      `db:"status"`
	ReviewReason null.String `db:"review_reason"`
	RawPayload   null.JSON   `db:"raw_payload"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func newTransactionRow(txn journal.Transaction) transactionRow {
	return transactionRow{
		ID:           txn.ID,
		LineID:       null.NewString(txn.LineID, txn.LineID != ""),
		PaymentID:    null.NewString(txn.PaymentID, txn.PaymentID != ""),
		Phone:        txn.Phone,
		Amount:       txn.Amount,
		ReceiptID:    txn.ReceiptID,
		Channel:      txn.Channel,
		Reference:    txn.Reference,
		PayerName:    txn.PayerName,
		Status:       string(txn.Status),
		ReviewReason: null.NewString(string(txn.ReviewReason), txn.ReviewReason != journal.ReasonNone),
		RawPayload:   null.NewJSON(txn.RawPayload, len(txn.RawPayload) > 0),
		CreatedAt:    txn.CreatedAt.UTC(),
		UpdatedAt:    txn.UpdatedAt.UTC(),
	}
}

func (row transactionRow) transaction() journal.Transaction {
	txn := journal.Transaction{
		ID:           row.ID,
		LineID:       row.LineID.String,
		PaymentID:    row.PaymentID.String,
		Phone:        row.Phone,
		Amount:       row.Amount,
		ReceiptID:    row.ReceiptID,
		Channel:      row.Channel,
		Reference:    row.Reference,
		PayerName:    row.PayerName,
		Status:       journal.Status(row.Status),
		ReviewReason: journal.ReviewReason(row.ReviewReason.String),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.RawPayload.Valid {
		txn.RawPayload = row.RawPayload.JSON
	}
	return txn
}

type transactionRepository struct {
	repository
}

var _ journal.Repository = (*transactionRepository)(nil) // interface compliance check

func NewTransactionRepository(db *sqlx.DB) *transactionRepository {
	return &transactionRepository{repository{db: db}}
}

func (repo transactionRepository) CreateTransaction(ctx context.Context, txn journal.Transaction, exec ...core.DBExecutor) (journal.Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	q := `INSERT INTO inbound_transactions (` + transactionColumns + `) VALUES (:id, :fee_ledger_line_id, :payment_id,
		:phone, :amount, :external_receipt_id, :channel, :reference, :payer_name, :status, :review_reason, :raw_payload,
		:created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newTransactionRow(txn)); err != nil {
		if isUniqueViolation(err, receiptConstraint) {
			return journal.Transaction{}, journal.ErrDuplicateReceipt
		}
		return journal.Transaction{}, errors.Wrap(err, "inserting inbound transaction")
	}
	return txn, nil
}

func (repo transactionRepository) getBy(ctx context.Context, col string, val interface{}, forUpdate bool, exec []core.DBExecutor) (journal.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM inbound_transactions WHERE ` + col + ` = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row transactionRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, val); err != nil {
		if err == sql.ErrNoRows {
			return journal.Transaction{}, journal.ErrNotFound
		}
		return journal.Transaction{}, errors.Wrap(err, "selecting inbound transaction")
	}
	return row.transaction(), nil
}

func (repo transactionRepository) GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (journal.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return journal.Transaction{}, journal.ErrNotFound
	}
	return repo.getBy(ctx, "id", id, false, exec)
}

func (repo transactionRepository) GetTransactionForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (journal.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return journal.Transaction{}, journal.ErrNotFound
	}
	return repo.getBy(ctx, "id", id, true, exec)
}

func (repo transactionRepository) GetTransactionByReceipt(ctx context.Context, receiptID string, exec ...core.DBExecutor) (journal.Transaction, error) {
	return repo.getBy(ctx, "external_receipt_id", receiptID, false, exec)
}

// UpdateTransaction only touches rows still PENDING; SUCCESS rows are immutable.
func (repo transactionRepository) UpdateTransaction(ctx context.Context, txn journal.Transaction, exec ...core.DBExecutor) (journal.Transaction, error) {
	q := `UPDATE inbound_transactions SET fee_ledger_line_id = :fee_ledger_line_id, payment_id = :payment_id,
		status = :status, review_reason = :review_reason, updated_at = :updated_at
		WHERE id = :id AND status = 'PENDING'`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newTransactionRow(txn))
	if err != nil {
		return journal.Transaction{}, errors.Wrap(err, "updating inbound transaction")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return journal.Transaction{}, journal.ErrNotPending
	}
	return txn, nil
}

func (repo transactionRepository) QueryTransactions(ctx context.Context, filter *journal.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]journal.Transaction, error) {
	var w where
	if filter != nil {
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
		if filter.ReviewReason != "" {
			w.add("review_reason = ?", string(filter.ReviewReason))
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	exe := repo.getExec(exec)
	q := exe.Rebind(`SELECT ` + transactionColumns + ` FROM inbound_transactions` + w.String() +
		orderBy(ordering, transactionOrderings, "created_at ASC"))
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, exe, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting inbound transactions")
	}

	txns := make([]journal.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	return txns, nil
}
