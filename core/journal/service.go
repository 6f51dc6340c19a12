// Package journal ingests payment network notifications idempotently and keeps the
// append-only record used for audit and manual review.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/routing"
)

var nowFunc = time.Now // mockable

type (
	Router interface {
		Route(ctx context.Context, req routing.Request) (routing.Decision, error)
	}

	Ledger interface {
		ApplyWithin(ctx context.Context, exec core.DBExecutor, np ledger.NewPayment) (ledger.Line, ledger.Payment, error)
		NotifyApplied(ctx context.Context, line ledger.Line, pmt ledger.Payment)
	}
)

type Service struct {
	tx     core.Transactor
	repo   Repository
	router Router
	ledger Ledger
	logger core.Logger
	scale  int32
	hooks  []MatchHook
}

func NewService(
	tx core.Transactor,
	repo Repository,
	router Router,
	ldgr Ledger,
	logger core.Logger,
	currencyScale int32,
	hooks ...MatchHook,
) *Service {
	return &Service{
		tx:     tx,
		repo:   repo,
		router: router,
		ledger: ldgr,
		logger: logger,
		scale:  currencyScale,
		hooks:  hooks,
	}
}

// Ingest records n and applies it when it can be matched to a unique ledger line.
// It never fails: the network retries anything but an acknowledgement, so every problem
// ends as a PENDING row (or a log entry when not even that could be written).
func (svc *Service) Ingest(ctx context.Context, n Notification) Ack {
	n.clean()
	if n.ReceiptID == "" {
		svc.logger.Warn("ignoring notification without receipt id", map[string]interface{}{"payload": string(n.RawPayload)})
		return Ack{Outcome: OutcomeIgnored}
	}

	existing, err := svc.repo.GetTransactionByReceipt(ctx, n.ReceiptID)
	if err == nil {
		return Ack{Outcome: OutcomeDuplicate, Transaction: existing}
	}
	if errors.Cause(err) != ErrNotFound {
		// the unique constraint still guards the inserts below
		svc.logger.Warn(fmt.Sprintf("checking receipt %s", n.ReceiptID), err)
	}

	now := nowFunc().UTC()
	txn := Transaction{
		ID:         uuid.New().String(),
		Phone:      n.Phone,
		ReceiptID:  n.ReceiptID,
		Channel:    n.Channel,
		Reference:  n.Reference,
		PayerName:  n.PayerName,
		Status:     StatusPending,
		RawPayload: jsonPayload(n.RawPayload),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if txn.Amount, err = ParseAmount(n.Amount, svc.scale); err != nil {
		svc.logger.Warn(fmt.Sprintf("receipt %s: %v", n.ReceiptID, err))
		txn.ReviewReason = ReasonOther
		return svc.record(ctx, txn)
	}

	dec, err := svc.router.Route(ctx, routing.Request{Shortcode: n.Channel, Reference: n.Reference, Phone: n.Phone})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("routing receipt %s", n.ReceiptID), err)
		txn.ReviewReason = ReasonOther
		return svc.record(ctx, txn)
	}
	if dec.Phone != "" {
		txn.Phone = dec.Phone
	}
	if !dec.Matched() {
		txn.ReviewReason = reasonFor(dec.Miss)
		return svc.record(ctx, txn)
	}
	return svc.apply(ctx, txn, dec)
}

// apply credits the matched line and inserts the SUCCESS row in one transaction, so a
// racing duplicate delivery loses on the receipt constraint and rolls its credit back.
func (svc *Service) apply(ctx context.Context, txn Transaction, dec routing.Decision) Ack {
	var (
		line ledger.Line
		pmt  ledger.Payment
	)
	applied := txn
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		line, pmt, err = svc.ledger.ApplyWithin(ctx, exec, svc.newPayment(txn, dec.LineID))
		if err != nil {
			return err
		}
		applied.Status = StatusSuccess
		applied.LineID = line.ID
		applied.PaymentID = pmt.ID
		applied, err = svc.repo.CreateTransaction(ctx, applied, exec)
		return err
	})

	switch cause := errors.Cause(err); {
	case err == nil:
		svc.ledger.NotifyApplied(ctx, line, pmt)
		if dec.ByPhone {
			svc.notifyMatched(ctx, dec.StudentID, dec.Phone)
		}
		return Ack{Outcome: OutcomeApplied, Transaction: applied}
	case cause == ErrDuplicateReceipt || cause == ledger.ErrDuplicateKey:
		if existing, gErr := svc.repo.GetTransactionByReceipt(ctx, txn.ReceiptID); gErr == nil {
			return Ack{Outcome: OutcomeDuplicate, Transaction: existing}
		}
	}

	svc.logger.Error(fmt.Sprintf("applying receipt %s to line %s", txn.ReceiptID, dec.LineID), err)
	txn.LineID = dec.LineID // candidate for the reviewer
	txn.ReviewReason = ReasonOther
	return svc.record(ctx, txn)
}

// record inserts a PENDING row.
func (svc *Service) record(ctx context.Context, txn Transaction) Ack {
	txn.Status = StatusPending
	created, err := svc.repo.CreateTransaction(ctx, txn)
	if err == nil {
		return Ack{Outcome: OutcomePending, Transaction: created}
	}
	if errors.Cause(err) == ErrDuplicateReceipt {
		if existing, gErr := svc.repo.GetTransactionByReceipt(ctx, txn.ReceiptID); gErr == nil {
			return Ack{Outcome: OutcomeDuplicate, Transaction: existing}
		}
	}
	// nothing left but the logs: keep the whole notification there
	svc.logger.Error(fmt.Sprintf("journaling receipt %s", txn.ReceiptID), err, map[string]interface{}{
		"receipt_id": txn.ReceiptID,
		"amount":     txn.Amount,
		"channel":    txn.Channel,
		"reference":  txn.Reference,
		"phone":      txn.Phone,
		"payload":    string(txn.RawPayload),
	})
	return Ack{Outcome: OutcomePending, Transaction: txn}
}

func (svc *Service) newPayment(txn Transaction, lineID string) ledger.NewPayment {
	return ledger.NewPayment{
		LineID:         lineID,
		Amount:         txn.Amount,
		Method:         ledger.MethodMobileMoney,
		Reference:      txn.ReceiptID,
		IdempotencyKey: "c2b:" + txn.ReceiptID,
		PaidAt:         txn.CreatedAt,
	}
}

func (svc *Service) notifyMatched(ctx context.Context, studentID, phone string) {
	for _, hook := range svc.hooks {
		if err := hook.PhoneMatched(ctx, studentID, phone); err != nil {
			svc.logger.Warn(fmt.Sprintf("match hook failed for student %s", studentID), err)
		}
	}
}

// Resolve applies a PENDING transaction to the line chosen by a reviewer and marks it SUCCESS.
func (svc *Service) Resolve(ctx context.Context, id, lineID string) (Transaction, error) {
	var (
		txn  Transaction
		line ledger.Line
		pmt  ledger.Payment
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if txn, err = svc.repo.GetTransactionForUpdate(ctx, id, exec); err != nil {
			return errors.Wrap(err, "locking inbound transaction")
		}
		if !txn.Pending() {
			return ErrNotPending
		}
		if txn.Amount <= 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "transaction has no valid amount"})
		}
		if line, pmt, err = svc.ledger.ApplyWithin(ctx, exec, svc.newPayment(txn, lineID)); err != nil {
			return err
		}
		txn = svc.markApplied(txn, line, pmt)
		txn, err = svc.repo.UpdateTransaction(ctx, txn, exec)
		return errors.Wrap(err, "updating inbound transaction")
	})
	if err != nil {
		return Transaction{}, err
	}
	svc.ledger.NotifyApplied(ctx, line, pmt)
	return txn, nil
}

// RetryPending re-routes PENDING transactions created since `since` and applies those that
// now match (e.g. after the payer's guardian was registered). Reasons are refreshed in place.
func (svc *Service) RetryPending(ctx context.Context, since time.Time) (RetryResult, error) {
	var res RetryResult
	pending, err := svc.repo.QueryTransactions(ctx, &QueryFilter{Status: StatusPending, CreatedFrom: since}, nil)
	if err != nil {
		return res, errors.Wrap(err, "querying pending transactions")
	}

	for _, txn := range pending {
		res.Scanned++
		if txn.Amount <= 0 {
			continue
		}
		dec, err := svc.router.Route(ctx, routing.Request{Shortcode: txn.Channel, Reference: txn.Reference, Phone: txn.Phone})
		if err != nil {
			res.Failed++
			svc.logger.Warn(fmt.Sprintf("re-routing receipt %s", txn.ReceiptID), err)
			continue
		}
		if err = svc.retry(ctx, txn.ID, dec); err != nil {
			res.Failed++
			svc.logger.Warn(fmt.Sprintf("retrying receipt %s", txn.ReceiptID), err)
			continue
		}
		if dec.Matched() {
			res.Applied++
		}
	}
	return res, nil
}

func (svc *Service) retry(ctx context.Context, id string, dec routing.Decision) error {
	var (
		line    ledger.Line
		pmt     ledger.Payment
		applied bool
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		txn, err := svc.repo.GetTransactionForUpdate(ctx, id, exec)
		if err != nil {
			return errors.Wrap(err, "locking inbound transaction")
		}
		if !txn.Pending() { // resolved meanwhile
			return nil
		}
		if !dec.Matched() {
			reason := reasonFor(dec.Miss)
			if reason == txn.ReviewReason {
				return nil
			}
			txn.ReviewReason = reason
			txn.UpdatedAt = nowFunc().UTC()
			_, err = svc.repo.UpdateTransaction(ctx, txn, exec)
			return errors.Wrap(err, "updating review reason")
		}
		if line, pmt, err = svc.ledger.ApplyWithin(ctx, exec, svc.newPayment(txn, dec.LineID)); err != nil {
			return err
		}
		_, err = svc.repo.UpdateTransaction(ctx, svc.markApplied(txn, line, pmt), exec)
		applied = err == nil
		return errors.Wrap(err, "updating inbound transaction")
	})
	if err != nil || !applied {
		return err
	}
	svc.ledger.NotifyApplied(ctx, line, pmt)
	if dec.ByPhone {
		svc.notifyMatched(ctx, dec.StudentID, dec.Phone)
	}
	return nil
}

func (svc *Service) markApplied(txn Transaction, line ledger.Line, pmt ledger.Payment) Transaction {
	txn.Status = StatusSuccess
	txn.ReviewReason = ReasonNone
	txn.LineID = line.ID
	txn.PaymentID = pmt.ID
	txn.UpdatedAt = nowFunc().UTC()
	return txn
}

func (svc *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Transaction, error) {
	return svc.repo.QueryTransactions(ctx, filter, ordering)
}

// jsonPayload keeps the raw payload only when it is valid JSON.
func jsonPayload(raw []byte) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}
