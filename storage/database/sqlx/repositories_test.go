package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/phone"
	"github.com/trezcool/masomo-fees/core/routing"
	"github.com/trezcool/masomo-fees/core/student"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
	"github.com/trezcool/masomo-fees/tests"
)

const legacyChannel = "600100"

type fixture struct {
	db       *sqlx.DB
	tx       *sqlxrepos.Transactor
	dir      student.Directory
	lines    ledger.LineRepository
	payments ledger.PaymentRepository
	txns     journal.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	return &fixture{
		db:       db,
		tx:       sqlxrepos.NewTransactor(db),
		dir:      sqlxrepos.NewDirectory(db),
		lines:    sqlxrepos.NewLineRepository(db),
		payments: sqlxrepos.NewPaymentRepository(db),
		txns:     sqlxrepos.NewTransactionRepository(db),
	}
}

func (f *fixture) journalService(t *testing.T) *journal.Service {
	t.Helper()
	logger := logsvc.NewDiscardLogger()
	table, err := routing.NewTable(
		map[string]routing.Strategy{legacyChannel: {Kind: routing.KindLegacyMultiFee}},
		map[string]string{"TUI": "tuition"},
	)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(f.tx, f.lines, f.payments, logger)
	router := routing.NewRouter(table, phone.NewResolver(phone.KenyaPlan, f.dir), f.dir, f.lines,
		routing.Period{Term: ledger.Term1, Year: 2024})
	return journal.NewService(f.tx, f.txns, router, ledgerSvc, logger, 2, journal.NewAliasLearner(f.dir))
}

func newTransaction(receipt string, status journal.Status, reason journal.ReviewReason, createdAt time.Time) journal.Transaction {
	return journal.Transaction{
		Amount:       1000,
		ReceiptID:    receipt,
		Channel:      legacyChannel,
		Status:       status,
		ReviewReason: reason,
		RawPayload:   []byte(`{"TransID":"` + receipt + `"}`),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestTransactionRepository_duplicateReceipt(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	now := time.Now().UTC()

	created, err := f.txns.CreateTransaction(ctx, newTransaction("R1", journal.StatusPending, journal.ReasonNoStudent, now))
	require.NoError(t, err)

	_, err = f.txns.CreateTransaction(ctx, newTransaction("R1", journal.StatusPending, journal.ReasonOther, now))
	assert.Equal(t, journal.ErrDuplicateReceipt, err)

	got, err := f.txns.GetTransactionByReceipt(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, journal.ReasonNoStudent, got.ReviewReason)
	assert.JSONEq(t, `{"TransID":"R1"}`, string(got.RawPayload))

	_, err = f.txns.GetTransactionByReceipt(ctx, "R2")
	assert.Equal(t, journal.ErrNotFound, err)
}

func TestTransactionRepository_QueryTransactions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for _, txn := range []journal.Transaction{
		newTransaction("Q1", journal.StatusPending, journal.ReasonNoStudent, t0),
		newTransaction("Q2", journal.StatusPending, journal.ReasonNoFees, t0.Add(time.Hour)),
		newTransaction("Q3", journal.StatusPending, journal.ReasonNoStudent, t0.Add(2*time.Hour)),
		newTransaction("Q4", journal.StatusFailed, journal.ReasonNone, t0.Add(3*time.Hour)),
	} {
		_, err := f.txns.CreateTransaction(ctx, txn)
		require.NoError(t, err)
	}

	receipts := func(txns []journal.Transaction) []string {
		ids := make([]string, 0, len(txns))
		for _, txn := range txns {
			ids = append(ids, txn.ReceiptID)
		}
		return ids
	}

	tests := []struct {
		name     string
		filter   *journal.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all", want: []string{"Q1", "Q2", "Q3", "Q4"}},
		{name: "by status", filter: &journal.QueryFilter{Status: journal.StatusFailed}, want: []string{"Q4"}},
		{
			name:   "by status and reason",
			filter: &journal.QueryFilter{Status: journal.StatusPending, ReviewReason: journal.ReasonNoStudent},
			want:   []string{"Q1", "Q3"},
		},
		{
			name:   "created range",
			filter: &journal.QueryFilter{CreatedFrom: t0.Add(30 * time.Minute), CreatedTo: t0.Add(2 * time.Hour)},
			want:   []string{"Q2", "Q3"},
		},
		{
			name:     "descending",
			filter:   &journal.QueryFilter{Status: journal.StatusPending},
			ordering: []core.DBOrdering{{Field: "created_at", Ascending: false}},
			want:     []string{"Q3", "Q2", "Q1"},
		},
		{
			name:     "unknown ordering field falls back",
			ordering: []core.DBOrdering{{Field: "id; DROP TABLE students"}},
			want:     []string{"Q1", "Q2", "Q3", "Q4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.txns.QueryTransactions(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, receipts(got))
		})
	}
}

func TestPaymentRepository_duplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000)

	pmt := ledger.Payment{
		LineID:         line.ID,
		Amount:         1000,
		Method:         ledger.MethodMobileMoney,
		Reference:      "R1",
		PaidAt:         time.Now().UTC(),
		IdempotencyKey: "c2b:R1",
		CreatedAt:      time.Now().UTC(),
	}
	created, err := f.payments.CreatePayment(ctx, pmt)
	require.NoError(t, err)

	pmt.ID = ""
	_, err = f.payments.CreatePayment(ctx, pmt)
	assert.Equal(t, ledger.ErrDuplicateKey, err)

	got, err := f.payments.GetPaymentByIdempotencyKey(ctx, "c2b:R1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// payments without a key never collide
	pmt.IdempotencyKey = ""
	_, err = f.payments.CreatePayment(ctx, pmt)
	require.NoError(t, err)
	pmt.ID = ""
	_, err = f.payments.CreatePayment(ctx, pmt)
	require.NoError(t, err)

	pmts, err := f.payments.QueryPaymentsByLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Len(t, pmts, 3)
}

func TestLineRepository_QueryLines(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	alice := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	bob := testutil.CreateStudent(t, f.dir, "ADM002", "Bob", "")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	late := testutil.CreateLine(t, f.lines, alice.ID, "tuition", 2024, 5000, testutil.LineOpts{DueDate: testutil.Date(2024, 3, 1), CreatedAt: t0})
	early := testutil.CreateLine(t, f.lines, alice.ID, "tuition", 2024, 5000, testutil.LineOpts{DueDate: testutil.Date(2024, 2, 1), CreatedAt: t0.Add(time.Hour)})
	noDue := testutil.CreateLine(t, f.lines, alice.ID, "transport", 2024, 800, testutil.LineOpts{CreatedAt: t0})
	paid := testutil.CreateLine(t, f.lines, alice.ID, "tuition", 2024, 5000, testutil.LineOpts{Paid: 5000, DueDate: testutil.Date(2024, 1, 1), CreatedAt: t0})
	testutil.CreateLine(t, f.lines, alice.ID, "tuition", 2023, 5000, testutil.LineOpts{CreatedAt: t0})
	testutil.CreateLine(t, f.lines, bob.ID, "tuition", 2024, 5000, testutil.LineOpts{CreatedAt: t0})

	ids := func(lines []ledger.Line) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			out = append(out, l.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter ledger.LineFilter
		want   []string
	}{
		{
			name:   "oldest outstanding first, nulls last",
			filter: ledger.LineFilter{StudentID: alice.ID, AcademicYear: 2024, OutstandingOnly: true},
			want:   []string{early.ID, late.ID, noDue.ID},
		},
		{
			name:   "category",
			filter: ledger.LineFilter{StudentID: alice.ID, FeeCategoryID: "tuition", AcademicYear: 2024},
			want:   []string{paid.ID, early.ID, late.ID},
		},
		{
			name:   "excluded category",
			filter: ledger.LineFilter{StudentID: alice.ID, ExcludeCategoryID: "tuition", AcademicYear: 2024},
			want:   []string{noDue.ID},
		},
		{
			name:   "malformed student id",
			filter: ledger.LineFilter{StudentID: "ADM001"},
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.lines.QueryLines(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestLineRepository_GetLineForUpdate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000)
	svc := ledger.NewService(f.tx, f.lines, f.payments, logsvc.NewDiscardLogger())

	// every concurrent credit is applied under the row lock
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, ledger.NewPayment{
				LineID:    line.ID,
				Amount:    600,
				Method:    ledger.MethodCash,
				Reference: uuid.New().String(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := f.lines.GetLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), got.AmountPaid)
	assert.Equal(t, ledger.StatusPaid, got.Status)
	assert.True(t, got.Locked)

	_, err = f.lines.GetLine(ctx, uuid.New().String())
	assert.Equal(t, ledger.ErrLineNotFound, err)
}

func TestIngest_concurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "0711000001")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})
	svc := f.journalService(t)

	n := journal.Notification{
		ReceiptID:  "R9",
		Amount:     "10",
		Channel:    legacyChannel,
		Reference:  "TUI",
		Phone:      "254711000001",
		RawPayload: []byte(`{"TransID":"R9"}`),
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[journal.Outcome]int)
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack := svc.Ingest(ctx, n)
			mu.Lock()
			outcomes[ack.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[journal.OutcomeApplied])
	assert.Equal(t, 7, outcomes[journal.OutcomeDuplicate])

	txns, err := f.txns.QueryTransactions(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, journal.StatusSuccess, txns[0].Status)

	pmts, err := f.payments.QueryPaymentsByLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Len(t, pmts, 1)

	got, err := f.lines.GetLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.AmountPaid)
}
