package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// capabilityMiddleware guards routes whose capability is not scoped to a student.
func capabilityMiddleware(authz Authorizer, capability string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := authorize(ctx, authz, capability, ""); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func authorize(ctx echo.Context, authz Authorizer, capability, studentID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	ok, err := authz.Authorize(ctx.Request().Context(), claims, capability, studentID)
	if err != nil {
		return errors.Wrap(err, "authorizing")
	}
	if !ok {
		return errHttpForbidden
	}
	return nil
}
