// Package sqlxrepos implements the fee repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
)

const uniqueViolation = "23505"

type Transactor struct {
	db *sqlx.DB
}

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx hands fn a *sqlx.Tx; fn's error (or a panic) rolls it back.
func (t *Transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type repository struct {
	db *sqlx.DB
}

// getExec returns the transaction passed by a service, or the pool.
func (repo repository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if exec, ok := svcExec[0].(sqlx.ExtContext); ok {
			return exec
		}
	}
	return repo.db
}

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

// where accumulates ANDed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy keeps only orderings on allowed columns.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(list) == 0 {
		return fmt.Sprintf(" ORDER BY %s", fallback)
	}
	return " ORDER BY " + strings.Join(list, ", ")
}
