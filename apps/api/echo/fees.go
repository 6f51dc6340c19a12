package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
)

type feesApi struct {
	ledger   LedgerService
	balances BalanceService
	authz    Authorizer
	validate *validator.Validate
	year     int
}

func registerFeesAPI(g *echo.Group, jwt echo.MiddlewareFunc, api feesApi) {
	g.POST("/payments", api.createPayment, jwt)
	g.GET("/payments/:id", api.retrievePayment, jwt)
	g.GET("/ledger-lines/:id", api.retrieveLine, jwt)
	g.GET("/ledger-lines/:id/payments", api.queryLinePayments, jwt)
	g.GET("/students/:id/balance", api.balance, jwt)
}

// Handlers

func (api *feesApi) createPayment(ctx echo.Context) error {
	var data ledger.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	line, err := api.ledger.GetLine(ctx.Request().Context(), data.LineID)
	if err != nil {
		if errors.Cause(err) == ledger.ErrLineNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "line_id", Error: "fee ledger line not found"})
		}
		return errors.Wrap(err, "getting fee ledger line")
	}
	if err = authorize(ctx, api.authz, CapPaymentsCreate, line.StudentID); err != nil {
		return err
	}

	pmt, err := api.ledger.Apply(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "applying payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *feesApi) retrievePayment(ctx echo.Context) error {
	pmt, err := api.ledger.GetPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	line, err := api.ledger.GetLine(ctx.Request().Context(), pmt.LineID)
	if err != nil {
		return errors.Wrap(err, "getting fee ledger line")
	}
	if err = authorize(ctx, api.authz, CapPaymentsRead, line.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *feesApi) retrieveLine(ctx echo.Context) error {
	line, err := api.ledger.GetLine(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting fee ledger line")
	}
	if err = authorize(ctx, api.authz, CapBalancesRead, line.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, line)
}

func (api *feesApi) queryLinePayments(ctx echo.Context) error {
	line, err := api.ledger.GetLine(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting fee ledger line")
	}
	if err = authorize(ctx, api.authz, CapPaymentsRead, line.StudentID); err != nil {
		return err
	}

	pmts, err := api.ledger.QueryPayments(ctx.Request().Context(), line.ID)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []ledger.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

// balance answers the rollover summary of the configured academic year, or ?year=.
// Without ?term= the whole year is the current period.
func (api *feesApi) balance(ctx echo.Context) error {
	studentID := ctx.Param("id")
	if err := authorize(ctx, api.authz, CapBalancesRead, studentID); err != nil {
		return err
	}

	var q BalanceQuery
	if err := ctx.Bind(&q); err != nil {
		return core.NewValidationError(errors.New("invalid query parameters"))
	}
	year := q.Year
	if year == 0 {
		year = api.year
	}
	var term *ledger.Term
	if q.Term != "" {
		t, err := ledger.ParseTerm(q.Term)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "term", Error: err.Error()})
		}
		term = &t
	}

	summary, err := api.balances.Summarize(ctx.Request().Context(), studentID, term, year)
	if err != nil {
		return errors.Wrap(err, "summarizing balance")
	}
	return ctx.JSON(http.StatusOK, summary)
}
