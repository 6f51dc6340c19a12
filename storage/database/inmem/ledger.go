package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/rollover"
)

type lineRepository struct {
	db *DB
}

var (
	_ ledger.LineRepository = (*lineRepository)(nil)
	_ rollover.LineReader   = (*lineRepository)(nil)
)

func NewLineRepository(db *DB) *lineRepository {
	return &lineRepository{db: db}
}

func (repo *lineRepository) CreateLine(ctx context.Context, line ledger.Line, exec ...core.DBExecutor) (ledger.Line, error) {
	defer repo.db.lock(exec)()
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	repo.db.lines[line.ID] = line
	return line, nil
}

func (repo *lineRepository) GetLine(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Line, error) {
	defer repo.db.lock(exec)()
	if line, ok := repo.db.lines[id]; ok {
		return line, nil
	}
	return ledger.Line{}, ledger.ErrLineNotFound
}

// GetLineForUpdate needs no row lock: transactions are serialized.
func (repo *lineRepository) GetLineForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Line, error) {
	return repo.GetLine(ctx, id, exec...)
}

func (repo *lineRepository) UpdateLine(ctx context.Context, line ledger.Line, exec ...core.DBExecutor) (ledger.Line, error) {
	defer repo.db.lock(exec)()
	if _, ok := repo.db.lines[line.ID]; !ok {
		return ledger.Line{}, ledger.ErrLineNotFound
	}
	repo.db.lines[line.ID] = line
	return line, nil
}

func (repo *lineRepository) QueryLines(ctx context.Context, filter ledger.LineFilter, exec ...core.DBExecutor) ([]ledger.Line, error) {
	defer repo.db.lock(exec)()
	lines := make([]ledger.Line, 0)
	for _, l := range repo.db.lines {
		switch {
		case filter.StudentID != "" && l.StudentID != filter.StudentID:
		case filter.FeeCategoryID != "" && l.FeeCategoryID != filter.FeeCategoryID:
		case filter.ExcludeCategoryID != "" && l.FeeCategoryID == filter.ExcludeCategoryID:
		case filter.AcademicYear != 0 && l.AcademicYear != filter.AcademicYear:
		case filter.OutstandingOnly && !l.Outstanding():
		default:
			lines = append(lines, l)
		}
	}
	ledger.SortOldestFirst(lines)
	return lines, nil
}

func (repo *lineRepository) StudentLines(ctx context.Context, studentID string) ([]ledger.Line, error) {
	return repo.QueryLines(ctx, ledger.LineFilter{StudentID: studentID})
}

type paymentRepository struct {
	db *DB
}

var _ ledger.PaymentRepository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, pmt ledger.Payment, exec ...core.DBExecutor) (ledger.Payment, error) {
	defer repo.db.lock(exec)()
	if _, ok := repo.db.lines[pmt.LineID]; !ok {
		return ledger.Payment{}, ledger.ErrLineNotFound
	}
	if pmt.IdempotencyKey != "" {
		for _, p := range repo.db.payments {
			if p.IdempotencyKey == pmt.IdempotencyKey {
				return ledger.Payment{}, ledger.ErrDuplicateKey
			}
		}
	}
	if pmt.ID == "" {
		pmt.ID = uuid.New().String()
	}
	repo.db.payments[pmt.ID] = pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Payment, error) {
	defer repo.db.lock(exec)()
	if pmt, ok := repo.db.payments[id]; ok {
		return pmt, nil
	}
	return ledger.Payment{}, ledger.ErrPaymentNotFound
}

func (repo *paymentRepository) GetPaymentByIdempotencyKey(ctx context.Context, key string, exec ...core.DBExecutor) (ledger.Payment, error) {
	defer repo.db.lock(exec)()
	if key != "" {
		for _, pmt := range repo.db.payments {
			if pmt.IdempotencyKey == key {
				return pmt, nil
			}
		}
	}
	return ledger.Payment{}, ledger.ErrPaymentNotFound
}

func (repo *paymentRepository) QueryPaymentsByLine(ctx context.Context, lineID string, exec ...core.DBExecutor) ([]ledger.Payment, error) {
	defer repo.db.lock(exec)()
	pmts := make([]ledger.Payment, 0)
	for _, pmt := range repo.db.payments {
		if pmt.LineID == lineID {
			pmts = append(pmts, pmt)
		}
	}
	sort.Slice(pmts, func(i, j int) bool {
		if !pmts[i].PaidAt.Equal(pmts[j].PaidAt) {
			return pmts[i].PaidAt.Before(pmts[j].PaidAt)
		}
		return pmts[i].CreatedAt.Before(pmts[j].CreatedAt)
	})
	return pmts, nil
}
