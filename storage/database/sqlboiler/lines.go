// Package boiledrepos holds the read models built on sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/rollover"
)

type studentLine struct {
	ID            string      `boil:"id"`
	StudentID     string      `boil:"student_id"`
	FeeCategoryID string      `boil:"fee_category_id"`
	Term          null.String `boil:"term"`
	AcademicYear  int         `boil:"academic_year"`
	AmountDue     int64       `boil:"amount_due"`
	AmountPaid    int64       `boil:"amount_paid"`
	Locked        bool        `boil:"locked"`
	Status        string      `boil:"status"`
	DueDate       null.Time   `boil:"due_date"`
	CreatedAt     time.Time   `boil:"created_at"`
}

func (sl studentLine) unboil() ledger.Line {
	l := ledger.Line{
		ID:            sl.ID,
		StudentID:     sl.StudentID,
		FeeCategoryID: sl.FeeCategoryID,
		AcademicYear:  sl.AcademicYear,
		AmountDue:     sl.AmountDue,
		AmountPaid:    sl.AmountPaid,
		Locked:        sl.Locked,
		Status:        ledger.Status(sl.Status),
		DueDate:       sl.DueDate.Ptr(),
		CreatedAt:     sl.CreatedAt,
	}
	if sl.Term.Valid {
		l.Term = ledger.Term(sl.Term.String).Ptr()
	}
	return l
}

// lineReader loads a student's ledger lines for the balance summary.
type lineReader struct {
	exec core.DBExecutor
}

var _ rollover.LineReader = (*lineReader)(nil) // interface compliance check

func NewLineReader(exec core.DBExecutor) *lineReader {
	return &lineReader{exec: exec}
}

func (repo lineReader) StudentLines(ctx context.Context, studentID string) ([]ledger.Line, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return nil, nil
	}

	var rows []studentLine
	err := queries.Raw(`SELECT id, student_id, fee_category_id, term, academic_year, amount_due, amount_paid, locked,
		status, due_date, created_at FROM fee_ledger_lines WHERE student_id = $1
		ORDER BY academic_year, due_date NULLS LAST, created_at`, studentID).Bind(ctx, repo.exec, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "selecting student ledger lines")
	}

	lines := make([]ledger.Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.unboil())
	}
	return lines, nil
}
