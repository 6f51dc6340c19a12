package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/masomo-fees/core"
)

type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
)

// StatusFor derives a line status from its due and paid amounts.
func StatusFor(due, paid int64) Status {
	switch {
	case paid >= due:
		return StatusPaid
	case paid > 0:
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// Term is an academic term. A nil *Term on a Line means the charge is yearly.
type Term string

const (
	Term1 Term = "TERM1"
	Term2 Term = "TERM2"
	Term3 Term = "TERM3"
)

var termRanks = map[Term]int{Term1: 1, Term2: 2, Term3: 3}

// Rank orders terms within an academic year: TERM1 < TERM2 < TERM3.
func (t Term) Rank() int { return termRanks[t] }

func (t Term) Ptr() *Term { return &t }

func ParseTerm(s string) (Term, error) {
	t := Term(strings.ToUpper(core.CleanString(s)))
	if _, ok := termRanks[t]; !ok {
		return "", fmt.Errorf("invalid term %q", s)
	}
	return t, nil
}

// Line is one expected charge for one student, fee category and period (a.k.a. student fee).
type Line struct {
	ID                string     `json:"id"`
	StudentID         string     `json:"student_id"`
	FeeCategoryID     string     `json:"fee_category_id"`
	Term              *Term      `json:"term"`
	AcademicYear      int        `json:"academic_year"`
	BaseAmount        int64      `json:"base_amount"`
	AmountDue         int64      `json:"amount_due"`
	AmountPaid        int64      `json:"amount_paid"`
	Locked            bool       `json:"locked"`
	Status            Status     `json:"status"`
	SourceStructureID string     `json:"source_structure_id,omitempty"`
	DueDate           *time.Time `json:"due_date"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (l Line) Outstanding() bool { return l.AmountPaid < l.AmountDue }

// InPeriod reports whether the line belongs to term/year exactly; a nil term only matches yearly lines.
func (l Line) InPeriod(term *Term, year int) bool {
	if l.AcademicYear != year {
		return false
	}
	if term == nil || l.Term == nil {
		return term == nil && l.Term == nil
	}
	return *l.Term == *term
}

// credit adds amount to the paid total. Overpayment is kept in full and locks the line.
func (l *Line) credit(amount int64, now time.Time) {
	l.AmountPaid += amount
	l.Status = StatusFor(l.AmountDue, l.AmountPaid)
	if l.AmountPaid > l.AmountDue {
		l.Locked = true
	}
	l.UpdatedAt = now
}

// reprice applies new catalog amounts; locked lines refuse it.
func (l *Line) reprice(base, due int64, now time.Time) error {
	if l.Locked {
		return ErrLineLocked
	}
	l.BaseAmount = base
	l.AmountDue = due
	l.Status = StatusFor(l.AmountDue, l.AmountPaid)
	l.UpdatedAt = now
	return nil
}

// SortOldestFirst orders lines by due date ascending (nulls last), then creation time ascending.
func SortOldestFirst(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		di, dj := lines[i].DueDate, lines[j].DueDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return lines[i].CreatedAt.Before(lines[j].CreatedAt)
	})
}

// OldestOutstanding returns the first outstanding line in SortOldestFirst order.
func OldestOutstanding(lines []Line) (Line, bool) {
	candidates := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Outstanding() {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return Line{}, false
	}
	SortOldestFirst(candidates)
	return candidates[0], true
}

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodPOS          Method = "pos"
	MethodOnline       Method = "online"
	MethodMobileMoney  Method = "mobile_money"
)

var Methods = []Method{MethodCash, MethodBankTransfer, MethodPOS, MethodOnline, MethodMobileMoney}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Payment is an applied money movement against exactly one Line. Immutable once created.
type Payment struct {
	ID                 string    `json:"id"`
	LineID             string    `json:"line_id"`
	Amount             int64     `json:"amount"`
	Method             Method    `json:"method"`
	Reference          string    `json:"reference"`
	PaidAt             time.Time `json:"paid_at"`
	IdempotencyKey     string    `json:"idempotency_key,omitempty"`
	CreatedFromOffline bool      `json:"created_from_offline"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewPayment contains information needed to apply a payment to a Line.
type NewPayment struct {
	LineID         string    `json:"line_id" validate:"required"`
	Amount         int64     `json:"amount" validate:"gt=0"`
	Method         Method    `json:"method" validate:"required,paymethod"`
	Reference      string    `json:"reference" validate:"max=128"`
	IdempotencyKey string    `json:"idempotency_key" validate:"max=128"`
	PaidAt         time.Time `json:"paid_at"`
	Offline        bool      `json:"offline"`
}

func (np *NewPayment) Clean() {
	np.LineID = core.CleanString(np.LineID)
	np.Method = Method(core.CleanString(string(np.Method), true /* lower */))
	np.Reference = core.CleanString(np.Reference)
	np.IdempotencyKey = core.CleanString(np.IdempotencyKey)
}

// NewLine contains the catalog-supplied information needed to create a Line.
type NewLine struct {
	StudentID         string
	FeeCategoryID     string
	Term              *Term
	AcademicYear      int
	BaseAmount        int64
	AmountDue         int64
	SourceStructureID string
	DueDate           *time.Time
}

// LineFilter is ANDed; zero values are ignored.
type LineFilter struct {
	StudentID         string
	FeeCategoryID     string
	ExcludeCategoryID string
	AcademicYear      int
	OutstandingOnly   bool
}
