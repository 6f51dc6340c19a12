package journal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/phone"
	"github.com/trezcool/masomo-fees/core/routing"
	"github.com/trezcool/masomo-fees/core/student"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database/inmem"
	"github.com/trezcool/masomo-fees/tests"
)

const (
	legacyChannel = "600100"
	scale         = 2
)

type fixture struct {
	db       *inmemdb.DB
	dir      student.Directory
	lines    ledger.LineRepository
	payments ledger.PaymentRepository
	txns     journal.Repository
	ledger   *ledger.Service
	router   *routing.Router
	svc      *journal.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := inmemdb.Open()
	f := &fixture{
		db:       db,
		dir:      inmemdb.NewDirectory(db),
		lines:    inmemdb.NewLineRepository(db),
		payments: inmemdb.NewPaymentRepository(db),
		txns:     inmemdb.NewTransactionRepository(db),
	}
	logger := logsvc.NewDiscardLogger()

	table, err := routing.NewTable(
		map[string]routing.Strategy{legacyChannel: {Kind: routing.KindLegacyMultiFee}},
		map[string]string{"TUI": "tuition", "TRN": "transport"},
	)
	require.NoError(t, err)

	f.ledger = ledger.NewService(db, f.lines, f.payments, logger)
	f.router = routing.NewRouter(table, phone.NewResolver(phone.KenyaPlan, f.dir), f.dir, f.lines, routing.Period{Term: ledger.Term1, Year: 2024})
	f.svc = journal.NewService(db, f.txns, f.router, f.ledger, logger, scale, journal.NewAliasLearner(f.dir))
	return f
}

func (f *fixture) journalRows(t *testing.T) []journal.Transaction {
	t.Helper()
	txns, err := f.txns.QueryTransactions(context.Background(), nil, nil)
	require.NoError(t, err)
	return txns
}

func (f *fixture) linePayments(t *testing.T, lineID string) []ledger.Payment {
	t.Helper()
	pmts, err := f.payments.QueryPaymentsByLine(context.Background(), lineID)
	require.NoError(t, err)
	return pmts
}

func notification(receipt, amount, reference, phoneNo string) journal.Notification {
	return journal.Notification{
		ReceiptID:  receipt,
		Amount:     amount,
		Channel:    legacyChannel,
		Reference:  reference,
		Phone:      phoneNo,
		PayerName:  "JANE DOE",
		RawPayload: []byte(`{"TransID":"` + receipt + `"}`),
	}
}

func TestService_Ingest_endToEnd(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	testutil.CreateGuardian(t, f.dir, "Mum", "0711000001", "", stud)
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	ack := f.svc.Ingest(ctx, notification("R1", "30.00", "ADM001-TUI", "+254711000001"))
	require.Equal(t, journal.OutcomeApplied, ack.Outcome)

	txn := ack.Transaction
	assert.Equal(t, journal.StatusSuccess, txn.Status)
	assert.Equal(t, journal.ReasonNone, txn.ReviewReason)
	assert.Equal(t, line.ID, txn.LineID)
	assert.Equal(t, int64(3000), txn.Amount)
	assert.Equal(t, "254711000001", txn.Phone)
	assert.JSONEq(t, `{"TransID":"R1"}`, string(txn.RawPayload))

	pmt, err := f.payments.GetPayment(ctx, txn.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), pmt.Amount)
	assert.Equal(t, ledger.MethodMobileMoney, pmt.Method)
	assert.Equal(t, "R1", pmt.Reference)

	got, err := f.lines.GetLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got.AmountPaid)
	assert.Equal(t, ledger.StatusPartiallyPaid, got.Status)

	exists, err := f.dir.AliasExists(ctx, stud.ID, "254711000001")
	require.NoError(t, err)
	assert.True(t, exists, "a phone alias must be learned from the phone match")
}

func TestService_Ingest_duplicateReceipt(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "0711000001")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	n := notification("R2", "10", "TUI", "0711000001")
	first := f.svc.Ingest(ctx, n)
	second := f.svc.Ingest(ctx, n)
	assert.Equal(t, journal.OutcomeApplied, first.Outcome)
	assert.Equal(t, journal.OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Len(t, f.journalRows(t), 1)
	assert.Len(t, f.linePayments(t, line.ID), 1)
	got, _ := f.lines.GetLine(ctx, line.ID)
	assert.Equal(t, int64(1000), got.AmountPaid)
}

func TestService_Ingest_concurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "0711000001")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[journal.Outcome]int)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack := f.svc.Ingest(ctx, notification("R3", "10", "TUI", "0711000001"))
			mu.Lock()
			outcomes[ack.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[journal.OutcomeApplied])
	assert.Equal(t, 9, outcomes[journal.OutcomeDuplicate])
	assert.Len(t, f.journalRows(t), 1)
	assert.Len(t, f.linePayments(t, line.ID), 1)
	got, _ := f.lines.GetLine(ctx, line.ID)
	assert.Equal(t, int64(1000), got.AmountPaid)
}

func TestService_Ingest_review(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	alice := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	bob := testutil.CreateStudent(t, f.dir, "ADM002", "Bob", "")
	carol := testutil.CreateStudent(t, f.dir, "ADM003", "Carol", "0733000003")
	// two guardians whose numbers share the matched suffix
	testutil.CreateGuardian(t, f.dir, "Parent A", "0722000002", "", alice)
	testutil.CreateGuardian(t, f.dir, "Parent B", "+254722000002", "", bob)
	aliceLine := testutil.CreateLine(t, f.lines, alice.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})
	carolLine := testutil.CreateLine(t, f.lines, carol.ID, "transport", 2024, 800, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	tests := []struct {
		name       string
		n          journal.Notification
		wantReason journal.ReviewReason
		wantAmount int64
	}{
		{
			name:       "multiple students",
			n:          notification("P1", "10", "fees", "0722000002"),
			wantReason: journal.ReasonMultipleStudents,
			wantAmount: 1000,
		},
		{
			name:       "no student",
			n:          notification("P2", "10", "fees", "0799999999"),
			wantReason: journal.ReasonNoStudent,
			wantAmount: 1000,
		},
		{
			name:       "no outstanding fees in the coded category",
			n:          notification("P3", "10", "TUI", "0733000003"),
			wantReason: journal.ReasonNoFees,
			wantAmount: 1000,
		},
		{
			name:       "unparseable amount",
			n:          notification("P4", "ten", "TUI", "0733000003"),
			wantReason: journal.ReasonOther,
		},
		{
			name:       "amount past int64 minor units on a matching line",
			n:          notification("P5", "100000000000000000000", "TRN", "0733000003"),
			wantReason: journal.ReasonOther,
		},
		{
			name:       "amount wrapping to a negative int64",
			n:          notification("P6", "92233720368547758.08", "TRN", "0733000003"),
			wantReason: journal.ReasonOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := f.svc.Ingest(ctx, tt.n)
			assert.Equal(t, journal.OutcomePending, ack.Outcome)

			txn, err := f.txns.GetTransactionByReceipt(ctx, tt.n.ReceiptID)
			require.NoError(t, err)
			assert.Equal(t, journal.StatusPending, txn.Status)
			assert.Equal(t, tt.wantReason, txn.ReviewReason)
			assert.Equal(t, tt.wantAmount, txn.Amount)
			assert.Empty(t, txn.PaymentID)
		})
	}

	assert.Empty(t, f.linePayments(t, aliceLine.ID))
	assert.Empty(t, f.linePayments(t, carolLine.ID))
	got, err := f.lines.GetLine(ctx, carolLine.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountPaid)
}

func TestService_Ingest_missingReceipt(t *testing.T) {
	f := setup(t)
	ack := f.svc.Ingest(context.Background(), notification(" ", "10", "TUI", "0711000001"))
	assert.Equal(t, journal.OutcomeIgnored, ack.Outcome)
	assert.Empty(t, f.journalRows(t))
}

func TestService_Ingest_noAliasForReferenceMatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	ack := f.svc.Ingest(ctx, notification("R4", "10", "ADM001-TUI", "0799999999"))
	require.Equal(t, journal.OutcomeApplied, ack.Outcome)

	exists, err := f.dir.AliasExists(ctx, stud.ID, "254799999999")
	require.NoError(t, err)
	assert.False(t, exists)
}

// failingLedger fails every application.
type failingLedger struct{}

func (failingLedger) ApplyWithin(ctx context.Context, exec core.DBExecutor, np ledger.NewPayment) (ledger.Line, ledger.Payment, error) {
	return ledger.Line{}, ledger.Payment{}, errors.New("storage unavailable")
}

func (failingLedger) NotifyApplied(ctx context.Context, line ledger.Line, pmt ledger.Payment) {}

func TestService_Ingest_applicationFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "0711000001")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	svc := journal.NewService(f.db, f.txns, f.router, failingLedger{}, logsvc.NewDiscardLogger(), scale)
	ack := svc.Ingest(ctx, notification("R5", "10", "TUI", "0711000001"))
	assert.Equal(t, journal.OutcomePending, ack.Outcome)

	txn, err := f.txns.GetTransactionByReceipt(ctx, "R5")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusPending, txn.Status)
	assert.Equal(t, journal.ReasonOther, txn.ReviewReason)
	assert.Equal(t, line.ID, txn.LineID, "the candidate line is kept for the reviewer")
	assert.Equal(t, int64(1000), txn.Amount)
}

// downRepo cannot write.
type downRepo struct {
	journal.Repository
}

func (downRepo) CreateTransaction(ctx context.Context, txn journal.Transaction, exec ...core.DBExecutor) (journal.Transaction, error) {
	return journal.Transaction{}, errors.New("connection refused")
}

func (downRepo) GetTransactionByReceipt(ctx context.Context, receiptID string, exec ...core.DBExecutor) (journal.Transaction, error) {
	return journal.Transaction{}, errors.New("connection refused")
}

func TestService_Ingest_journalDown(t *testing.T) {
	f := setup(t)
	svc := journal.NewService(f.db, downRepo{f.txns}, f.router, f.ledger, logsvc.NewDiscardLogger(), scale)

	ack := svc.Ingest(context.Background(), notification("R6", "10", "fees", "0799999999"))
	assert.Equal(t, journal.OutcomePending, ack.Outcome)
	assert.Equal(t, "R6", ack.Transaction.ReceiptID)
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	alice := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	bob := testutil.CreateStudent(t, f.dir, "ADM002", "Bob", "")
	testutil.CreateGuardian(t, f.dir, "Parent", "0722000002", "", alice, bob)
	line := testutil.CreateLine(t, f.lines, bob.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	ack := f.svc.Ingest(ctx, notification("R7", "25", "fees", "0722000002"))
	require.Equal(t, journal.OutcomePending, ack.Outcome)

	txn, err := f.svc.Resolve(ctx, ack.Transaction.ID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusSuccess, txn.Status)
	assert.Equal(t, journal.ReasonNone, txn.ReviewReason)
	assert.Equal(t, line.ID, txn.LineID)
	assert.NotEmpty(t, txn.PaymentID)

	got, _ := f.lines.GetLine(ctx, line.ID)
	assert.Equal(t, int64(2500), got.AmountPaid)

	_, err = f.svc.Resolve(ctx, ack.Transaction.ID, line.ID)
	assert.Equal(t, journal.ErrNotPending, pkgerrors.Cause(err))
	got, _ = f.lines.GetLine(ctx, line.ID)
	assert.Equal(t, int64(2500), got.AmountPaid)

	_, err = f.svc.Resolve(ctx, "unknown", line.ID)
	assert.Equal(t, journal.ErrNotFound, pkgerrors.Cause(err))
}

func TestService_Resolve_unknownLine(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ack := f.svc.Ingest(ctx, notification("R8", "25", "fees", "0799999999"))
	require.Equal(t, journal.OutcomePending, ack.Outcome)

	_, err := f.svc.Resolve(ctx, ack.Transaction.ID, "no-such-line")
	assert.Equal(t, ledger.ErrLineNotFound, pkgerrors.Cause(err))

	txn, err := f.svc.Get(ctx, ack.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, txn.Pending(), "a failed resolution leaves the row pending")
}

func TestService_RetryPending(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	stud := testutil.CreateStudent(t, f.dir, "ADM001", "Alice", "")
	line := testutil.CreateLine(t, f.lines, stud.ID, "tuition", 2024, 5000, testutil.LineOpts{Term: ledger.Term1.Ptr()})

	first := f.svc.Ingest(ctx, notification("R9", "10", "TUI", "0711000001"))
	require.Equal(t, journal.OutcomePending, first.Outcome)
	second := f.svc.Ingest(ctx, notification("R10", "10", "TUI", "0744000004"))
	require.Equal(t, journal.OutcomePending, second.Outcome)

	// the payer gets registered as a guardian afterwards
	testutil.CreateGuardian(t, f.dir, "Mum", "0711000001", "", stud)

	res, err := f.svc.RetryPending(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, journal.RetryResult{Scanned: 2, Applied: 1}, res)

	txn, err := f.svc.Get(ctx, first.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusSuccess, txn.Status)
	assert.Equal(t, line.ID, txn.LineID)

	got, _ := f.lines.GetLine(ctx, line.ID)
	assert.Equal(t, int64(1000), got.AmountPaid)

	exists, _ := f.dir.AliasExists(ctx, stud.ID, "254711000001")
	assert.True(t, exists)

	pending, err := f.svc.Query(ctx, &journal.QueryFilter{Status: journal.StatusPending}, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "R10", pending[0].ReceiptID)
	assert.Equal(t, journal.ReasonNoStudent, pending[0].ReviewReason)
}
