// Package student is the read side of the student/guardian directory the fee core depends on.
package student

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("student not found")
	ErrAliasExists = errors.New("phone alias already exists")
	ErrRefExists   = errors.New("a student with this reference already exists")
)

type Student struct {
	ID    string `json:"id"`
	Ref   string `json:"ref"` // public identifier (admission number) used in payment references
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Guardian struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// PhoneAlias is a learned association between a payer phone and a student.
type PhoneAlias struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is implemented by the storage backends.
// Phone lookups match on the last 9 digits of the stored number.
type Directory interface {
	StudentIDsByGuardianPhone(ctx context.Context, suffix string) ([]string, error)
	StudentIDsByStudentPhone(ctx context.Context, suffix string) ([]string, error)
	StudentIDsByAlias(ctx context.Context, suffix string) ([]string, error)

	GetStudent(ctx context.Context, id string) (Student, error)
	GetStudentByRef(ctx context.Context, ref string) (Student, error)
	GuardiansOf(ctx context.Context, studentID string) ([]Guardian, error)
	IsGuardianOf(ctx context.Context, guardianID, studentID string) (bool, error)

	AliasExists(ctx context.Context, studentID, phone string) (bool, error)
	CreateAlias(ctx context.Context, alias PhoneAlias) (PhoneAlias, error)

	CreateStudent(ctx context.Context, s Student) (Student, error)
	CreateGuardian(ctx context.Context, g Guardian, studentIDs ...string) (Guardian, error)
}
