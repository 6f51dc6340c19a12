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

const lineColumns = `id, student_id, fee_category_id, term, academic_year, base_amount, amount_due, amount_paid,
	locked, status, source_structure_id, due_date, created_at, updated_at`

type lineRow struct {
	ID                string      `db:"id"`
	StudentID         string      `db:"student_id"`
	FeeCategoryID     string      `db:"fee_category_id"`
	Term              null.String `db:"term"`
	AcademicYear      int         `db:"academic_year"`
	BaseAmount        int64       `db:"base_amount"`
	AmountDue         int64       `db:"amount_due"`
	AmountPaid        int64       `db:"amount_paid"`
	Locked            bool        `db:"locked"`
	Status            string      `db:"status"`
	SourceStructureID null.String `db:"source_structure_id"`
	DueDate           null.Time   `db:"due_date"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func newLineRow(l ledger.Line) lineRow {
	row := lineRow{
		ID:                l.ID,
		StudentID:         l.StudentID,
		FeeCategoryID:     l.FeeCategoryID,
		AcademicYear:      l.AcademicYear,
		BaseAmount:        l.BaseAmount,
		AmountDue:         l.AmountDue,
		AmountPaid:        l.AmountPaid,
		Locked:            l.Locked,
		Status:            string(l.Status),
		SourceStructureID: null.NewString(l.SourceStructureID, l.SourceStructureID != ""),
		DueDate:           null.TimeFromPtr(l.DueDate),
		CreatedAt:         l.CreatedAt.UTC(),
		UpdatedAt:         l.UpdatedAt.UTC(),
	}
	if l.Term != nil {
		row.Term = null.StringFrom(string(*l.Term))
	}
	return row
}

func (row lineRow) line() ledger.Line {
	l := ledger.Line{
		ID:                row.ID,
		StudentID:         row.StudentID,
		FeeCategoryID:     row.FeeCategoryID,
		AcademicYear:      row.AcademicYear,
		BaseAmount:        row.BaseAmount,
		AmountDue:         row.AmountDue,
		AmountPaid:        row.AmountPaid,
		Locked:            row.Locked,
		Status:            ledger.Status(row.Status),
		SourceStructureID: row.SourceStructureID.String,
		DueDate:           row.DueDate.Ptr(),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.Term.Valid {
		l.Term = ledger.Term(row.Term.String).Ptr()
	}
	return l
}

type lineRepository struct {
	repository
}

var _ ledger.LineRepository = (*lineRepository)(nil) // interface compliance check

func NewLineRepository(db *sqlx.DB) *lineRepository {
	return &lineRepository{repository{db: db}}
}

func (repo lineRepository) CreateLine(ctx context.Context, line ledger.Line, exec ...core.DBExecutor) (ledger.Line, error) {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	q := `INSERT INTO fee_ledger_lines (` + lineColumns + `) VALUES (:id, :student_id, :fee_category_id, :term,
		:academic_year, :base_amount, :amount_due, :amount_paid, :locked, :status, :source_structure_id, :due_date,
		:created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newLineRow(line)); err != nil {
		return ledger.Line{}, errors.Wrap(err, "inserting fee ledger line")
	}
	return line, nil
}

func (repo lineRepository) get(ctx context.Context, id string, forUpdate bool, exec []core.DBExecutor) (ledger.Line, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.Line{}, ledger.ErrLineNotFound
	}
	q := `SELECT ` + lineColumns + ` FROM fee_ledger_lines WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row lineRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Line{}, ledger.ErrLineNotFound
		}
		return ledger.Line{}, errors.Wrap(err, "selecting fee ledger line")
	}
	return row.line(), nil
}

func (repo lineRepository) GetLine(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Line, error) {
	return repo.get(ctx, id, false, exec)
}

func (repo lineRepository) GetLineForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Line, error) {
	return repo.get(ctx, id, true, exec)
}

func (repo lineRepository) UpdateLine(ctx context.Context, line ledger.Line, exec ...core.DBExecutor) (ledger.Line, error) {
	q := `UPDATE fee_ledger_lines SET base_amount = :base_amount, amount_due = :amount_due, amount_paid = :amount_paid,
		locked = :locked, status = :status, due_date = :due_date, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newLineRow(line))
	if err != nil {
		return ledger.Line{}, errors.Wrap(err, "updating fee ledger line")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.Line{}, ledger.ErrLineNotFound
	}
	return line, nil
}

func (repo lineRepository) QueryLines(ctx context.Context, filter ledger.LineFilter, exec ...core.DBExecutor) ([]ledger.Line, error) {
	var w where
	if filter.StudentID != "" {
		if _, err := uuid.Parse(filter.StudentID); err != nil {
			return nil, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.FeeCategoryID != "" {
		w.add("fee_category_id = ?", filter.FeeCategoryID)
	}
	if filter.ExcludeCategoryID != "" {
		w.add("fee_category_id <> ?", filter.ExcludeCategoryID)
	}
	if filter.AcademicYear != 0 {
		w.add("academic_year = ?", filter.AcademicYear)
	}
	if filter.OutstandingOnly {
		w.add("amount_paid < amount_due")
	}

	exe := repo.getExec(exec)
	q := exe.Rebind(`SELECT ` + lineColumns + ` FROM fee_ledger_lines` + w.String() +
		` ORDER BY due_date ASC NULLS LAST, created_at ASC`)
	var rows []lineRow
	if err := sqlx.SelectContext(ctx, exe, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting fee ledger lines")
	}

	lines := make([]ledger.Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.line())
	}
	return lines, nil
}
