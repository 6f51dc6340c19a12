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
	"github.com/trezcool/masomo-fees/core/ledger"
)

const (
	paymentColumns = `id, fee_ledger_line_id, amount, method, reference, paid_at, idempotency_key,
	created_from_offline, created_at`
	paymentKeyConstraint = "payments_idempotency_key_key"
)

type paymentRow struct {
	ID                 string      `db:"id"`
	LineID             string      `db:"fee_ledger_line_id"`
	Amount             int64       `db:"amount"`
	Method             string      `db:"method"`
	Reference          string      `db:"reference"`
	PaidAt             time.Time   `db:"paid_at"`
	IdempotencyKey     null.String `db:"idempotency_key"`
	CreatedFromOffline bool        `db:"created_from_offline"`
	CreatedAt          time.Time   `db:"created_at"`
}

func (row paymentRow) payment() ledger.Payment {
	return ledger.Payment{
		ID:                 row.ID,
		LineID:             row.LineID,
		Amount:             row.Amount,
		Method:             ledger.Method(row.Method),
		Reference:          row.Reference,
		PaidAt:             row.PaidAt,
		IdempotencyKey:     row.IdempotencyKey.String,
		CreatedFromOffline: row.CreatedFromOffline,
		CreatedAt:          row.CreatedAt,
	}
}

type paymentRepository struct {
	repository
}

var _ ledger.PaymentRepository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{repository{db: db}}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, pmt ledger.Payment, exec ...core.DBExecutor) (ledger.Payment, error) {
	if pmt.ID == "" {
		pmt.ID = uuid.New().String()
	}
	row := paymentRow{
		ID:                 pmt.ID,
		LineID:             pmt.LineID,
		Amount:             pmt.Amount,
		Method:             string(pmt.Method),
		Reference:          pmt.Reference,
		PaidAt:             pmt.PaidAt.UTC(),
		IdempotencyKey:     null.NewString(pmt.IdempotencyKey, pmt.IdempotencyKey != ""),
		CreatedFromOffline: pmt.CreatedFromOffline,
		CreatedAt:          pmt.CreatedAt.UTC(),
	}
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (:id, :fee_ledger_line_id, :amount, :method, :reference,
		:paid_at, :idempotency_key, :created_from_offline, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		if isUniqueViolation(err, paymentKeyConstraint) {
			return ledger.Payment{}, ledger.ErrDuplicateKey
		}
		return ledger.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo paymentRepository) getBy(ctx context.Context, col string, val interface{}, exec []core.DBExecutor) (ledger.Payment, error) {
	var row paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + col + ` = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, val); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Payment{}, ledger.ErrPaymentNotFound
		}
		return ledger.Payment{}, errors.Wrap(err, "selecting payment")
	}
	return row.payment(), nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	return repo.getBy(ctx, "id", id, exec)
}

func (repo paymentRepository) GetPaymentByIdempotencyKey(ctx context.Context, key string, exec ...core.DBExecutor) (ledger.Payment, error) {
	if key == "" {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	return repo.getBy(ctx, "idempotency_key", key, exec)
}

func (repo paymentRepository) QueryPaymentsByLine(ctx context.Context, lineID string, exec ...core.DBExecutor) ([]ledger.Payment, error) {
	if _, err := uuid.Parse(lineID); err != nil {
		return nil, nil
	}
	var rows []paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE fee_ledger_line_id = $1 ORDER BY paid_at ASC, created_at ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, lineID); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	pmts := make([]ledger.Payment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, row.payment())
	}
	return pmts, nil
}
