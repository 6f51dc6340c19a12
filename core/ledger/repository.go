package ledger

import (
	"context"
	"errors"

	"github.com/trezcool/masomo-fees/core"
)

var (
	ErrLineNotFound    = errors.New("fee ledger line not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrLineLocked      = errors.New("fee ledger line is locked")
	// ErrDuplicateKey is returned by PaymentRepository.CreatePayment when the idempotency key is taken.
	ErrDuplicateKey = errors.New("a payment with this idempotency key already exists")
)

type (
	LineRepository interface {
		CreateLine(ctx context.Context, line Line, exec ...core.DBExecutor) (Line, error)
		GetLine(ctx context.Context, id string, exec ...core.DBExecutor) (Line, error)
		// GetLineForUpdate locks the line until the surrounding transaction ends.
		GetLineForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (Line, error)
		UpdateLine(ctx context.Context, line Line, exec ...core.DBExecutor) (Line, error)
		QueryLines(ctx context.Context, filter LineFilter, exec ...core.DBExecutor) ([]Line, error)
	}

	PaymentRepository interface {
		CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByIdempotencyKey(ctx context.Context, key string, exec ...core.DBExecutor) (Payment, error)
		QueryPaymentsByLine(ctx context.Context, lineID string, exec ...core.DBExecutor) ([]Payment, error)
	}

	// PaymentHook is notified after the transaction that created a payment has committed.
	PaymentHook interface {
		PaymentApplied(ctx context.Context, line Line, pmt Payment) error
	}
)
