// Package inmemdb is a map-backed store used by tests and local runs.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/student"
)

type (
	DB struct {
		mu sync.Mutex
		tables
	}

	tables struct {
		students  map[string]student.Student
		guardians map[string]student.Guardian
		wards     map[string]map[string]bool // guardian id -> student ids
		aliases   map[string]student.PhoneAlias
		lines     map[string]ledger.Line
		payments  map[string]ledger.Payment
		txns      map[string]journal.Transaction
	}

	// txExec marks calls made from inside WithinTx, where mu is already held.
	txExec struct {
		core.DBExecutor
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{tables: tables{
		students:  make(map[string]student.Student),
		guardians: make(map[string]student.Guardian),
		wards:     make(map[string]map[string]bool),
		aliases:   make(map[string]student.PhoneAlias),
		lines:     make(map[string]ledger.Line),
		payments:  make(map[string]ledger.Payment),
		txns:      make(map[string]journal.Transaction),
	}}
}

// WithinTx serializes transactions; fn's error (or a panic) restores the tables as they were.
func (db *DB) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.tables.clone()
	defer func() {
		if p := recover(); p != nil {
			db.tables = snap
			panic(p)
		}
	}()

	if err = fn(txExec{}); err != nil {
		db.tables = snap
	}
	return err
}

func (db *DB) lock(exec []core.DBExecutor) func() {
	if len(exec) > 0 {
		if _, ok := exec[0].(txExec); ok {
			return func() {}
		}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (t tables) clone() tables {
	c := tables{
		students:  make(map[string]student.Student, len(t.students)),
		guardians: make(map[string]student.Guardian, len(t.guardians)),
		wards:     make(map[string]map[string]bool, len(t.wards)),
		aliases:   make(map[string]student.PhoneAlias, len(t.aliases)),
		lines:     make(map[string]ledger.Line, len(t.lines)),
		payments:  make(map[string]ledger.Payment, len(t.payments)),
		txns:      make(map[string]journal.Transaction, len(t.txns)),
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.guardians {
		c.guardians[k] = v
	}
	for k, v := range t.wards {
		ids := make(map[string]bool, len(v))
		for id := range v {
			ids[id] = true
		}
		c.wards[k] = ids
	}
	for k, v := range t.aliases {
		c.aliases[k] = v
	}
	for k, v := range t.lines {
		c.lines[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.txns {
		c.txns[k] = v
	}
	return c
}
