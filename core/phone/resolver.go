package phone

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Lookup is the subset of the student directory the resolver reads from.
type Lookup interface {
	StudentIDsByGuardianPhone(ctx context.Context, suffix string) ([]string, error)
	StudentIDsByStudentPhone(ctx context.Context, suffix string) ([]string, error)
	StudentIDsByAlias(ctx context.Context, suffix string) ([]string, error)
}

// Resolution is the set of distinct students reachable from one phone number.
type Resolution struct {
	Phone      string   // normalized
	StudentIDs []string // sorted, distinct
}

func (r Resolution) Count() int { return len(r.StudentIDs) }

// Unique returns the student id when exactly one student was found.
func (r Resolution) Unique() (string, bool) {
	if len(r.StudentIDs) != 1 {
		return "", false
	}
	return r.StudentIDs[0], true
}

type Resolver struct {
	plan   Plan
	lookup Lookup
}

func NewResolver(plan Plan, lookup Lookup) *Resolver {
	return &Resolver{plan: plan, lookup: lookup}
}

// Resolve normalizes raw and collects the students reachable through guardians,
// students' own numbers and learned aliases. ErrUnresolvable is returned for numbers
// outside the plan.
func (res *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	normalized, err := res.plan.Normalize(raw)
	if err != nil {
		return Resolution{}, err
	}
	suffix := Suffix(normalized)

	sources := []struct {
		name string
		fn   func(context.Context, string) ([]string, error)
	}{
		{"guardians", res.lookup.StudentIDsByGuardianPhone},
		{"students", res.lookup.StudentIDsByStudentPhone},
		{"aliases", res.lookup.StudentIDsByAlias},
	}

	seen := make(map[string]struct{})
	for _, src := range sources {
		ids, err := src.fn(ctx, suffix)
		if err != nil {
			return Resolution{}, errors.Wrapf(err, "looking up %s by phone", src.name)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Resolution{Phone: normalized, StudentIDs: ids}, nil
}

// Normalize normalizes raw with the resolver's numbering plan.
func (res *Resolver) Normalize(raw string) (string, error) {
	return res.plan.Normalize(raw)
}
