package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-fees/core/student"
)

const (
	studentRefConstraint = "students_ref_key"
	aliasConstraint      = "phone_aliases_student_phone_key"
	phoneSuffix          = `right(regexp_replace(%s, '\D', '', 'g'), 9)`
)

type studentRow struct {
	ID    string      `db:"id"`
	Ref   string      `db:"ref"`
	Name  string      `db:"name"`
	Phone null.String `db:"phone"`
}

func (row studentRow) student() student.Student {
	return student.Student{ID: row.ID, Ref: row.Ref, Name: row.Name, Phone: row.Phone.String}
}

type guardianRow struct {
	ID    string      `db:"id"`
	Name  string      `db:"name"`
	Phone null.String `db:"phone"`
	Email null.String `db:"email"`
}

type directory struct {
	repository
}

var _ student.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(db *sqlx.DB) *directory {
	return &directory{repository{db: db}}
}

func suffixOf(col string) string {
	return fmt.Sprintf(phoneSuffix, col)
}

func (dir directory) studentIDs(ctx context.Context, q, suffix string) ([]string, error) {
	var ids []string
	if err := dir.db.SelectContext(ctx, &ids, q, suffix); err != nil {
		return nil, errors.Wrap(err, "selecting student ids by phone")
	}
	return ids, nil
}

func (dir directory) StudentIDsByGuardianPhone(ctx context.Context, suffix string) ([]string, error) {
	q := `SELECT DISTINCT sg.student_id FROM student_guardians sg JOIN guardians g ON g.id = sg.guardian_id
		WHERE ` + suffixOf("g.phone") + ` = $1`
	return dir.studentIDs(ctx, q, suffix)
}

func (dir directory) StudentIDsByStudentPhone(ctx context.Context, suffix string) ([]string, error) {
	return dir.studentIDs(ctx, `SELECT id FROM students WHERE `+suffixOf("phone")+` = $1`, suffix)
}

func (dir directory) StudentIDsByAlias(ctx context.Context, suffix string) ([]string, error) {
	return dir.studentIDs(ctx, `SELECT DISTINCT student_id FROM phone_aliases WHERE `+suffixOf("phone")+` = $1`, suffix)
}

func (dir directory) getStudent(ctx context.Context, q string, arg interface{}) (student.Student, error) {
	var row studentRow
	if err := dir.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.student(), nil
}

func (dir directory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	return dir.getStudent(ctx, `SELECT id, ref, name, phone FROM students WHERE id = $1`, id)
}

func (dir directory) GetStudentByRef(ctx context.Context, ref string) (student.Student, error) {
	return dir.getStudent(ctx, `SELECT id, ref, name, phone FROM students WHERE upper(ref) = upper($1)`, ref)
}

func (dir directory) GuardiansOf(ctx context.Context, studentID string) ([]student.Guardian, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return nil, nil
	}
	var rows []guardianRow
	q := `SELECT g.id, g.name, g.phone, g.email FROM guardians g
		JOIN student_guardians sg ON sg.guardian_id = g.id WHERE sg.student_id = $1 ORDER BY g.name`
	if err := dir.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting guardians")
	}
	guardians := make([]student.Guardian, 0, len(rows))
	for _, row := range rows {
		guardians = append(guardians, student.Guardian{ID: row.ID, Name: row.Name, Phone: row.Phone.String, Email: row.Email.String})
	}
	return guardians, nil
}

func (dir directory) IsGuardianOf(ctx context.Context, guardianID, studentID string) (bool, error) {
	if _, err := uuid.Parse(guardianID); err != nil {
		return false, nil
	}
	if _, err := uuid.Parse(studentID); err != nil {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM student_guardians WHERE guardian_id = $1 AND student_id = $2)`
	if err := dir.db.GetContext(ctx, &exists, q, guardianID, studentID); err != nil {
		return false, errors.Wrap(err, "checking guardianship")
	}
	return exists, nil
}

func (dir directory) AliasExists(ctx context.Context, studentID, phone string) (bool, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM phone_aliases WHERE student_id = $1 AND phone = $2)`
	if err := dir.db.GetContext(ctx, &exists, q, studentID, phone); err != nil {
		return false, errors.Wrap(err, "checking phone alias")
	}
	return exists, nil
}

func (dir directory) CreateAlias(ctx context.Context, alias student.PhoneAlias) (student.PhoneAlias, error) {
	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO phone_aliases (id, student_id, phone, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := dir.db.ExecContext(ctx, q, alias.ID, alias.StudentID, alias.Phone, alias.CreatedAt.UTC()); err != nil {
		if isUniqueViolation(err, aliasConstraint) {
			return student.PhoneAlias{}, student.ErrAliasExists
		}
		return student.PhoneAlias{}, errors.Wrap(err, "inserting phone alias")
	}
	return alias, nil
}

func (dir directory) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	q := `INSERT INTO students (id, ref, name, phone) VALUES ($1, $2, $3, $4)`
	if _, err := dir.db.ExecContext(ctx, q, s.ID, s.Ref, s.Name, null.NewString(s.Phone, s.Phone != "")); err != nil {
		if isUniqueViolation(err, studentRefConstraint) {
			return student.Student{}, student.ErrRefExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (dir directory) CreateGuardian(ctx context.Context, g student.Guardian, studentIDs ...string) (student.Guardian, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	tx, err := dir.db.BeginTxx(ctx, nil)
	if err != nil {
		return student.Guardian{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO guardians (id, name, phone, email) VALUES ($1, $2, $3, $4)`
	_, err = tx.ExecContext(ctx, q, g.ID, g.Name, null.NewString(g.Phone, g.Phone != ""), null.NewString(g.Email, g.Email != ""))
	if err != nil {
		return student.Guardian{}, errors.Wrap(err, "inserting guardian")
	}
	for _, sid := range studentIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO student_guardians (student_id, guardian_id) VALUES ($1, $2)`, sid, g.ID); err != nil {
			return student.Guardian{}, errors.Wrap(err, "linking guardian to student")
		}
	}
	if err = tx.Commit(); err != nil {
		return student.Guardian{}, errors.Wrap(err, "committing guardian")
	}
	return g, nil
}
