package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core/student"
)

// AliasStore is the subset of the student directory the alias learner writes to.
type AliasStore interface {
	AliasExists(ctx context.Context, studentID, phone string) (bool, error)
	CreateAlias(ctx context.Context, alias student.PhoneAlias) (student.PhoneAlias, error)
}

// AliasLearner remembers payer phones that matched a student so later payments resolve directly.
type AliasLearner struct {
	store AliasStore
}

var _ MatchHook = (*AliasLearner)(nil)

func NewAliasLearner(store AliasStore) *AliasLearner {
	return &AliasLearner{store: store}
}

func (al *AliasLearner) PhoneMatched(ctx context.Context, studentID, phone string) error {
	if studentID == "" || phone == "" {
		return nil
	}
	exists, err := al.store.AliasExists(ctx, studentID, phone)
	if err != nil {
		return errors.Wrap(err, "checking phone alias")
	}
	if exists {
		return nil
	}
	_, err = al.store.CreateAlias(ctx, student.PhoneAlias{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Cause(err) == student.ErrAliasExists { // learned concurrently
		return nil
	}
	return errors.Wrap(err, "creating phone alias")
}
