package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/student"
	"github.com/trezcool/masomo-fees/storage/database"
)

// OpenDB connects to the migrated TEST database and empties it.
// Tests calling it are skipped unless ENV=TEST (TEST_DATABASE_* variables point to the server).
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if !strings.EqualFold(os.Getenv("ENV"), "TEST") {
		t.Skip("ENV=TEST is required for database tests")
	}

	conf := core.NewConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE inbound_transactions, payments, fee_ledger_lines, phone_aliases,
		student_guardians, guardians, students CASCADE`); err != nil {
		t.Fatalf("truncating tables failed: %v", err)
	}
	return db
}

func CreateStudent(t *testing.T, dir student.Directory, ref, name, phone string) student.Student {
	t.Helper()
	stud, err := dir.CreateStudent(context.Background(), student.Student{Ref: ref, Name: name, Phone: phone})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stud
}

func CreateGuardian(t *testing.T, dir student.Directory, name, phone, email string, students ...student.Student) student.Guardian {
	t.Helper()
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	g, err := dir.CreateGuardian(context.Background(), student.Guardian{Name: name, Phone: phone, Email: email}, ids...)
	if err != nil {
		t.Fatalf("CreateGuardian() failed: %v", err)
	}
	return g
}

// LineOpts tweaks a line created by CreateLine.
type LineOpts struct {
	Term      *ledger.Term
	Paid      int64
	DueDate   *time.Time
	CreatedAt time.Time
}

func CreateLine(
	t *testing.T,
	repo ledger.LineRepository,
	studentID, categoryID string,
	year int,
	due int64,
	opts ...LineOpts,
) ledger.Line {
	t.Helper()
	var o LineOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	tstamp := o.CreatedAt
	if tstamp.IsZero() {
		tstamp = time.Now().UTC()
	}
	line := ledger.Line{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		FeeCategoryID: categoryID,
		Term:          o.Term,
		AcademicYear:  year,
		BaseAmount:    due,
		AmountDue:     due,
		AmountPaid:    o.Paid,
		Locked:        o.Paid > due,
		Status:        ledger.StatusFor(due, o.Paid),
		DueDate:       o.DueDate,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	line, err := repo.CreateLine(context.Background(), line)
	if err != nil {
		t.Fatalf("CreateLine() failed: %v", err)
	}
	return line
}

func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
