// Package ledger applies payments to student fee ledger lines.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
)

var nowFunc = time.Now // mockable

type Service struct {
	tx       core.Transactor
	lines    LineRepository
	payments PaymentRepository
	logger   core.Logger
	hooks    []PaymentHook
}

func NewService(tx core.Transactor, lines LineRepository, payments PaymentRepository, logger core.Logger, hooks ...PaymentHook) *Service {
	return &Service{
		tx:       tx,
		lines:    lines,
		payments: payments,
		logger:   logger,
		hooks:    hooks,
	}
}

// AddHook registers a PaymentHook run after every committed payment.
func (svc *Service) AddHook(hook PaymentHook) {
	svc.hooks = append(svc.hooks, hook)
}

// Apply credits np.Amount to the line and records the Payment in one transaction.
// A payment carrying an idempotency key that was already used is returned unchanged.
func (svc *Service) Apply(ctx context.Context, np NewPayment) (Payment, error) {
	np.Clean()
	if np.IdempotencyKey != "" {
		pmt, err := svc.payments.GetPaymentByIdempotencyKey(ctx, np.IdempotencyKey)
		if err == nil {
			return pmt, nil
		}
		if errors.Cause(err) != ErrPaymentNotFound {
			return Payment{}, errors.Wrap(err, "finding payment by idempotency key")
		}
	}

	var (
		line Line
		pmt  Payment
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		line, pmt, err = svc.ApplyWithin(ctx, exec, np)
		return err
	})
	if err != nil {
		// a concurrent retry with the same key won the race
		if errors.Cause(err) == ErrDuplicateKey && np.IdempotencyKey != "" {
			return svc.payments.GetPaymentByIdempotencyKey(ctx, np.IdempotencyKey)
		}
		return Payment{}, err
	}

	svc.NotifyApplied(ctx, line, pmt)
	return pmt, nil
}

// ApplyWithin does the work of Apply on an open transaction; the caller commits and must call
// NotifyApplied afterwards. The line row stays locked until exec ends.
func (svc *Service) ApplyWithin(ctx context.Context, exec core.DBExecutor, np NewPayment) (Line, Payment, error) {
	np.Clean()
	if np.Amount <= 0 {
		return Line{}, Payment{}, core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount must be greater than 0"})
	}
	if !np.Method.Valid() {
		return Line{}, Payment{}, core.NewValidationError(nil, core.FieldError{Field: "method", Error: paymentMethodText})
	}
	if np.Reference == "" {
		if np.Method != MethodCash {
			return Line{}, Payment{}, core.NewValidationError(nil, core.FieldError{Field: "reference", Error: referenceRequiredText})
		}
		np.Reference = cashReference()
	}

	line, err := svc.lines.GetLineForUpdate(ctx, np.LineID, exec)
	if err != nil {
		return Line{}, Payment{}, errors.Wrap(err, "locking fee ledger line")
	}

	now := nowFunc().UTC()
	line.credit(np.Amount, now)
	if line, err = svc.lines.UpdateLine(ctx, line, exec); err != nil {
		return Line{}, Payment{}, errors.Wrap(err, "updating fee ledger line")
	}

	paidAt := np.PaidAt.UTC()
	if np.PaidAt.IsZero() {
		paidAt = now
	}
	pmt, err := svc.payments.CreatePayment(ctx, Payment{
		ID:                 uuid.New().String(),
		LineID:             line.ID,
		Amount:             np.Amount,
		Method:             np.Method,
		Reference:          np.Reference,
		PaidAt:             paidAt,
		IdempotencyKey:     np.IdempotencyKey,
		CreatedFromOffline: np.Offline,
		CreatedAt:          now,
	}, exec)
	if err != nil {
		return Line{}, Payment{}, errors.Wrap(err, "creating payment")
	}
	return line, pmt, nil
}

// NotifyApplied runs the payment hooks. Hook errors are logged, never returned.
func (svc *Service) NotifyApplied(ctx context.Context, line Line, pmt Payment) {
	for _, hook := range svc.hooks {
		if err := hook.PaymentApplied(ctx, line, pmt); err != nil {
			svc.logger.Warn(fmt.Sprintf("payment hook failed for payment %s", pmt.ID), err)
		}
	}
}

// CreateLine materializes a catalog charge as a ledger line.
func (svc *Service) CreateLine(ctx context.Context, nl NewLine) (Line, error) {
	now := nowFunc().UTC()
	line := Line{
		ID:                uuid.New().String(),
		StudentID:         nl.StudentID,
		FeeCategoryID:     nl.FeeCategoryID,
		Term:              nl.Term,
		AcademicYear:      nl.AcademicYear,
		BaseAmount:        nl.BaseAmount,
		AmountDue:         nl.AmountDue,
		Status:            StatusFor(nl.AmountDue, 0),
		SourceStructureID: nl.SourceStructureID,
		DueDate:           nl.DueDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	line, err := svc.lines.CreateLine(ctx, line)
	return line, errors.Wrap(err, "creating fee ledger line")
}

// Reprice re-applies catalog amounts to a line. Locked (overpaid) lines return ErrLineLocked.
func (svc *Service) Reprice(ctx context.Context, lineID string, base, due int64) (Line, error) {
	var line Line
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if line, err = svc.lines.GetLineForUpdate(ctx, lineID, exec); err != nil {
			return errors.Wrap(err, "locking fee ledger line")
		}
		if err = line.reprice(base, due, nowFunc().UTC()); err != nil {
			return err
		}
		line, err = svc.lines.UpdateLine(ctx, line, exec)
		return errors.Wrap(err, "updating fee ledger line")
	})
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

func (svc *Service) GetLine(ctx context.Context, id string) (Line, error) {
	return svc.lines.GetLine(ctx, id)
}

func (svc *Service) GetPayment(ctx context.Context, id string) (Payment, error) {
	return svc.payments.GetPayment(ctx, id)
}

func (svc *Service) QueryPayments(ctx context.Context, lineID string) ([]Payment, error) {
	return svc.payments.QueryPaymentsByLine(ctx, lineID)
}

func cashReference() string {
	return "CASH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}
