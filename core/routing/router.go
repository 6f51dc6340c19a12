package routing

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/phone"
	"github.com/trezcool/masomo-fees/core/student"
)

// Miss explains why no ledger line was selected.
type Miss string

const (
	MissNone             Miss = ""
	MissNoStudent        Miss = "NO_STUDENT"
	MissMultipleStudents Miss = "MULTIPLE_STUDENTS"
	MissNoFees           Miss = "NO_FEES"
)

type (
	PhoneResolver interface {
		Normalize(raw string) (string, error)
		Resolve(ctx context.Context, raw string) (phone.Resolution, error)
	}

	Students interface {
		GetStudentByRef(ctx context.Context, ref string) (student.Student, error)
	}

	Lines interface {
		QueryLines(ctx context.Context, filter ledger.LineFilter, exec ...core.DBExecutor) ([]ledger.Line, error)
	}

	// Period is the configured current term and academic year.
	Period struct {
		Term ledger.Term
		Year int
	}

	Request struct {
		Shortcode string
		Reference string
		Phone     string
	}

	// Decision is the outcome of routing: either a target line or a Miss.
	Decision struct {
		LineID    string
		StudentID string
		// Phone is the normalized payer number, empty when it could not be normalized.
		Phone string
		// ByPhone is set when the student was identified from the payer phone.
		ByPhone bool
		Miss    Miss
	}

	routeFunc func(ctx context.Context, s Strategy, req Request) (Decision, error)
)

func (d Decision) Matched() bool { return d.LineID != "" }

type Router struct {
	table    *Table
	resolver PhoneResolver
	students Students
	lines    Lines
	period   Period
	routes   map[Kind]routeFunc
}

func NewRouter(table *Table, resolver PhoneResolver, students Students, lines Lines, period Period) *Router {
	r := &Router{
		table:    table,
		resolver: resolver,
		students: students,
		lines:    lines,
		period:   period,
	}
	r.routes = map[Kind]routeFunc{
		KindCategoryPinned: r.routeCategoryPinned,
		KindLegacyMultiFee: r.routeLegacyMultiFee,
		KindSharedGeneral:  r.routeSharedGeneral,
		KindGeneric:        r.routeGeneric,
	}
	return r
}

// Route selects zero or one ledger line for req. Failing to match is not an error;
// errors are reserved for storage failures.
func (r *Router) Route(ctx context.Context, req Request) (Decision, error) {
	s := r.table.Lookup(req.Shortcode)
	return r.routes[s.Kind](ctx, s, req)
}

func (r *Router) routeCategoryPinned(ctx context.Context, s Strategy, req Request) (Decision, error) {
	if core.CleanString(req.Reference) != s.PinnedReference {
		return Decision{Miss: MissNoStudent}, nil
	}
	dec, studentID, err := r.byPhone(ctx, req.Phone)
	if err != nil || dec.Miss != MissNone {
		return dec, err
	}
	return r.oldestOutstanding(ctx, dec, ledger.LineFilter{StudentID: studentID, FeeCategoryID: s.CategoryID})
}

func (r *Router) routeLegacyMultiFee(ctx context.Context, _ Strategy, req Request) (Decision, error) {
	dec, studentID, err := r.byPhone(ctx, req.Phone)
	if err != nil {
		return Decision{}, err
	}
	if dec.Miss == MissNone {
		filter := ledger.LineFilter{StudentID: studentID}
		if code, ok := feeCodeOf(req.Reference); ok {
			if cat, ok := r.table.Category(code); ok {
				filter.FeeCategoryID = cat
			}
		}
		return r.oldestOutstanding(ctx, dec, filter)
	}

	// phone did not single out a student: fall back to the typed reference
	ref, ok := ParseReference(req.Reference)
	if !ok {
		return dec, nil
	}
	byRef, err := r.byReference(ctx, ref)
	if err != nil {
		return Decision{}, err
	}
	if byRef.Miss == MissNoStudent {
		byRef.Miss = dec.Miss // keep MULTIPLE_STUDENTS when the phone was ambiguous
	}
	byRef.Phone = dec.Phone
	return byRef, nil
}

func (r *Router) routeSharedGeneral(ctx context.Context, s Strategy, req Request) (Decision, error) {
	dec, studentID, err := r.byPhone(ctx, req.Phone)
	if err != nil || dec.Miss != MissNone {
		return dec, err
	}
	return r.oldestOutstanding(ctx, dec, ledger.LineFilter{StudentID: studentID, ExcludeCategoryID: s.CategoryID})
}

func (r *Router) routeGeneric(ctx context.Context, _ Strategy, req Request) (Decision, error) {
	ref, ok := ParseReference(req.Reference)
	if !ok {
		return Decision{Miss: MissNoStudent}, nil
	}
	dec, err := r.byReference(ctx, ref)
	if err != nil {
		return Decision{}, err
	}
	if normalized, err := r.resolver.Normalize(req.Phone); err == nil {
		dec.Phone = normalized
	}
	return dec, nil
}

// byPhone resolves the payer phone. A Decision without Miss carries the unique student.
func (r *Router) byPhone(ctx context.Context, raw string) (Decision, string, error) {
	res, err := r.resolver.Resolve(ctx, raw)
	if err != nil {
		if errors.Cause(err) == phone.ErrUnresolvable {
			return Decision{Miss: MissNoStudent}, "", nil
		}
		return Decision{}, "", errors.Wrap(err, "resolving phone")
	}

	dec := Decision{Phone: res.Phone}
	studentID, ok := res.Unique()
	switch {
	case ok:
		dec.StudentID = studentID
		dec.ByPhone = true
	case res.Count() == 0:
		dec.Miss = MissNoStudent
	default:
		dec.Miss = MissMultipleStudents
	}
	return dec, studentID, nil
}

// byReference resolves studentRef-feeCode to the student's current-period line.
func (r *Router) byReference(ctx context.Context, ref Reference) (Decision, error) {
	stud, err := r.students.GetStudentByRef(ctx, ref.StudentRef)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return Decision{Miss: MissNoStudent}, nil
		}
		return Decision{}, errors.Wrap(err, "finding student by reference")
	}
	dec := Decision{StudentID: stud.ID}

	cat, ok := r.table.Category(ref.FeeCode)
	if !ok {
		dec.Miss = MissNoFees
		return dec, nil
	}
	lines, err := r.lines.QueryLines(ctx, ledger.LineFilter{StudentID: stud.ID, FeeCategoryID: cat, AcademicYear: r.period.Year})
	if err != nil {
		return Decision{}, errors.Wrap(err, "querying current-period lines")
	}
	line, ok := r.currentPeriodLine(lines)
	if !ok {
		dec.Miss = MissNoFees
		return dec, nil
	}
	dec.LineID = line.ID
	return dec, nil
}

// currentPeriodLine picks the single line of the current term, or failing that the single
// yearly line of the current year.
func (r *Router) currentPeriodLine(lines []ledger.Line) (ledger.Line, bool) {
	for _, term := range []*ledger.Term{r.period.Term.Ptr(), nil} {
		var found []ledger.Line
		for _, l := range lines {
			if l.InPeriod(term, r.period.Year) {
				found = append(found, l)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], true
		default:
			return ledger.Line{}, false // ambiguous; never guess
		}
	}
	return ledger.Line{}, false
}

func (r *Router) oldestOutstanding(ctx context.Context, dec Decision, filter ledger.LineFilter) (Decision, error) {
	filter.OutstandingOnly = true
	lines, err := r.lines.QueryLines(ctx, filter)
	if err != nil {
		return Decision{}, errors.Wrap(err, "querying outstanding lines")
	}
	line, ok := ledger.OldestOutstanding(lines)
	if !ok {
		dec.Miss = MissNoFees
		return dec, nil
	}
	dec.LineID = line.ID
	return dec, nil
}
