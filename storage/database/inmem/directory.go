package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-fees/core/phone"
	"github.com/trezcool/masomo-fees/core/student"
)

type directory struct {
	db *DB
}

var _ student.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(db *DB) *directory {
	return &directory{db: db}
}

// suffixOf mirrors the SQL expression: digits only, last phone.SuffixLen of them.
func suffixOf(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > phone.SuffixLen {
		return digits[len(digits)-phone.SuffixLen:]
	}
	return digits
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (dir *directory) StudentIDsByGuardianPhone(ctx context.Context, suffix string) ([]string, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	ids := make(map[string]bool)
	for gid, g := range dir.db.guardians {
		if g.Phone != "" && suffixOf(g.Phone) == suffix {
			for sid := range dir.db.wards[gid] {
				ids[sid] = true
			}
		}
	}
	return sortedKeys(ids), nil
}

func (dir *directory) StudentIDsByStudentPhone(ctx context.Context, suffix string) ([]string, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	ids := make(map[string]bool)
	for _, s := range dir.db.students {
		if s.Phone != "" && suffixOf(s.Phone) == suffix {
			ids[s.ID] = true
		}
	}
	return sortedKeys(ids), nil
}

func (dir *directory) StudentIDsByAlias(ctx context.Context, suffix string) ([]string, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	ids := make(map[string]bool)
	for _, a := range dir.db.aliases {
		if suffixOf(a.Phone) == suffix {
			ids[a.StudentID] = true
		}
	}
	return sortedKeys(ids), nil
}

func (dir *directory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	if s, ok := dir.db.students[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (dir *directory) GetStudentByRef(ctx context.Context, ref string) (student.Student, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	for _, s := range dir.db.students {
		if strings.EqualFold(s.Ref, ref) {
			return s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (dir *directory) GuardiansOf(ctx context.Context, studentID string) ([]student.Guardian, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	guardians := make([]student.Guardian, 0)
	for gid, wards := range dir.db.wards {
		if wards[studentID] {
			guardians = append(guardians, dir.db.guardians[gid])
		}
	}
	sort.Slice(guardians, func(i, j int) bool { return guardians[i].Name < guardians[j].Name })
	return guardians, nil
}

func (dir *directory) IsGuardianOf(ctx context.Context, guardianID, studentID string) (bool, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	return dir.db.wards[guardianID][studentID], nil
}

func (dir *directory) AliasExists(ctx context.Context, studentID, phone string) (bool, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	for _, a := range dir.db.aliases {
		if a.StudentID == studentID && a.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (dir *directory) CreateAlias(ctx context.Context, alias student.PhoneAlias) (student.PhoneAlias, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	for _, a := range dir.db.aliases {
		if a.StudentID == alias.StudentID && a.Phone == alias.Phone {
			return student.PhoneAlias{}, student.ErrAliasExists
		}
	}
	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	dir.db.aliases[alias.ID] = alias
	return alias, nil
}

func (dir *directory) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	for _, other := range dir.db.students {
		if strings.EqualFold(other.Ref, s.Ref) {
			return student.Student{}, student.ErrRefExists
		}
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	dir.db.students[s.ID] = s
	return s, nil
}

func (dir *directory) CreateGuardian(ctx context.Context, g student.Guardian, studentIDs ...string) (student.Guardian, error) {
	dir.db.mu.Lock()
	defer dir.db.mu.Unlock()
	for _, sid := range studentIDs {
		if _, ok := dir.db.students[sid]; !ok {
			return student.Guardian{}, student.ErrNotFound
		}
	}
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	dir.db.guardians[g.ID] = g
	wards := make(map[string]bool, len(studentIDs))
	for _, sid := range studentIDs {
		wards[sid] = true
	}
	dir.db.wards[g.ID] = wards
	return g, nil
}
