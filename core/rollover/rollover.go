// Package rollover computes a student's current-period balance, carrying surplus from
// earlier periods forward.
package rollover

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/ledger"
)

// Summary amounts are in minor currency units.
type Summary struct {
	TotalDue        int64 `json:"total_due"`
	TotalPaidRaw    int64 `json:"total_paid_raw"`
	PastCredit      int64 `json:"past_credit"`
	EffectivePaid   int64 `json:"effective_paid"`
	Balance         int64 `json:"balance"`
	RolloverForward int64 `json:"rollover_forward"`
}

type Options struct {
	// NullTermRank is the term rank given to yearly (term-less) lines when comparing periods.
	NullTermRank int
}

var DefaultOptions = Options{NullTermRank: ledger.Term1.Rank()}

// NewOptions accepts only a rank of an existing term.
func NewOptions(nullTermRank int) (Options, error) {
	if nullTermRank < ledger.Term1.Rank() || nullTermRank > ledger.Term3.Rank() {
		return Options{}, fmt.Errorf("null term rank %d must be between %d and %d", nullTermRank, ledger.Term1.Rank(), ledger.Term3.Rank())
	}
	return Options{NullTermRank: nullTermRank}, nil
}

type bucket int

const (
	bucketNone bucket = iota
	bucketCurrent
	bucketPast
)

func (opts Options) rank(t *ledger.Term) int {
	if t == nil {
		return opts.NullTermRank
	}
	return t.Rank()
}

func (opts Options) bucketOf(l ledger.Line, currentTerm *ledger.Term, asOfYear int) bucket {
	switch {
	case l.AcademicYear < asOfYear:
		return bucketPast
	case l.AcademicYear > asOfYear:
		return bucketNone
	case currentTerm == nil:
		return bucketCurrent
	case l.InPeriod(currentTerm, asOfYear):
		return bucketCurrent
	case l.Term == nil && opts.rank(nil) == currentTerm.Rank():
		return bucketCurrent
	case opts.rank(l.Term) < currentTerm.Rank():
		return bucketPast
	}
	return bucketNone
}

// Summarize is pure: lines of later periods are ignored, past shortfalls are not carried.
func Summarize(lines []ledger.Line, currentTerm *ledger.Term, asOfYear int, opts Options) Summary {
	var s Summary
	for _, l := range lines {
		switch opts.bucketOf(l, currentTerm, asOfYear) {
		case bucketCurrent:
			s.TotalDue += l.AmountDue
			s.TotalPaidRaw += l.AmountPaid
		case bucketPast:
			if excess := l.AmountPaid - l.AmountDue; excess > 0 {
				s.PastCredit += excess
			}
		}
	}

	s.EffectivePaid = s.TotalPaidRaw + s.PastCredit
	if diff := s.TotalDue - s.EffectivePaid; diff > 0 {
		s.Balance = diff
	} else {
		s.RolloverForward = -diff
	}
	return s
}

// LineReader loads every ledger line of a student.
type LineReader interface {
	StudentLines(ctx context.Context, studentID string) ([]ledger.Line, error)
}

type Service struct {
	lines LineReader
	opts  Options
}

func NewService(lines LineReader, opts Options) *Service {
	return &Service{lines: lines, opts: opts}
}

func (svc *Service) Summarize(ctx context.Context, studentID string, currentTerm *ledger.Term, asOfYear int) (Summary, error) {
	lines, err := svc.lines.StudentLines(ctx, studentID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "loading student ledger lines")
	}
	return Summarize(lines, currentTerm, asOfYear, svc.opts), nil
}
