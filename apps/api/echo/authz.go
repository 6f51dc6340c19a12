package echoapi

import (
	"context"

	"github.com/pkg/errors"
)

// Capabilities
const (
	CapPaymentsCreate    = "payments:create"
	CapPaymentsRead      = "payments:read"
	CapBalancesRead      = "balances:read"
	CapTransactionsRead  = "transactions:read"
	CapTransactionsWrite = "transactions:write"
)

var guardianCapabilities = map[string]bool{
	CapPaymentsCreate: true,
	CapBalancesRead:   true,
}

// Authorizer decides whether the caller may use a capability, optionally on one student.
type Authorizer interface {
	Authorize(ctx context.Context, claims Claims, capability, studentID string) (bool, error)
}

// GuardianChecker is the subset of the student directory used by RoleAuthorizer.
type GuardianChecker interface {
	IsGuardianOf(ctx context.Context, guardianID, studentID string) (bool, error)
}

// RoleAuthorizer allows staff everything and guardians a few capabilities on their own students.
type RoleAuthorizer struct {
	dir GuardianChecker
}

var _ Authorizer = (*RoleAuthorizer)(nil) // interface compliance check

func NewRoleAuthorizer(dir GuardianChecker) *RoleAuthorizer {
	return &RoleAuthorizer{dir: dir}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, claims Claims, capability, studentID string) (bool, error) {
	if claims.IsStaff() {
		return true, nil
	}
	if !claims.HasRole(RoleGuardian) || !guardianCapabilities[capability] {
		return false, nil
	}
	if claims.GuardianID == "" || studentID == "" {
		return false, nil
	}
	ok, err := a.dir.IsGuardianOf(ctx, claims.GuardianID, studentID)
	return ok, errors.Wrap(err, "checking guardianship")
}
