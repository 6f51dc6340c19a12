package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
)

type transactionApi struct {
	journal  JournalService
	validate *validator.Validate
}

func registerTransactionAPI(g *echo.Group, jwt echo.MiddlewareFunc, authz Authorizer, api transactionApi) {
	tg := g.Group("/transactions", jwt)
	tg.GET("", api.query, capabilityMiddleware(authz, CapTransactionsRead))
	tg.GET("/:id", api.retrieve, capabilityMiddleware(authz, CapTransactionsRead))
	tg.POST("/:id/resolve", api.resolve, capabilityMiddleware(authz, CapTransactionsWrite))
}

func parseTimeParam(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "expected an RFC3339 timestamp"})
	}
	return t, nil
}

// Handlers

func (api *transactionApi) query(ctx echo.Context) error {
	var err error
	filter := &journal.QueryFilter{
		Status:       journal.Status(ctx.QueryParam("status")),
		ReviewReason: journal.ReviewReason(ctx.QueryParam("reason")),
	}
	if filter.CreatedFrom, err = parseTimeParam(ctx, "created_from"); err != nil {
		return err
	}
	if filter.CreatedTo, err = parseTimeParam(ctx, "created_to"); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	txns, err := api.journal.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying inbound transactions")
	}
	if txns == nil {
		txns = []journal.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *transactionApi) retrieve(ctx echo.Context) error {
	txn, err := api.journal.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting inbound transaction")
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *transactionApi) resolve(ctx echo.Context) error {
	var data ResolveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveRequest")
	}
	data.LineID = core.CleanString(data.LineID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	txn, err := api.journal.Resolve(ctx.Request().Context(), ctx.Param("id"), data.LineID)
	if err != nil {
		return errors.Wrap(err, "resolving inbound transaction")
	}
	return ctx.JSON(http.StatusOK, txn)
}
