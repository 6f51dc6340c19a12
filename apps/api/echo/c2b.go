package echoapi

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-fees/core"
)

type c2bApi struct {
	journal JournalService
	logger  core.Logger
}

func registerC2BAPI(g *echo.Group, journal JournalService, logger core.Logger) {
	api := c2bApi{journal: journal, logger: logger}

	// called by the payment network: no JWT
	cg := g.Group("/c2b")
	cg.POST("/validation", api.validate)
	cg.POST("/confirmation", api.confirm)
}

// validate accepts every payment; matching happens on confirmation.
func (api *c2bApi) validate(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c2bAccepted)
}

// confirm never fails: the network redelivers anything but an acceptance.
func (api *c2bApi) confirm(ctx echo.Context) error {
	raw, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		api.logger.Warn("reading c2b confirmation body", err)
	}

	var data C2BRequest
	if err = json.Unmarshal(raw, &data); err != nil {
		api.logger.Warn("decoding c2b confirmation", err, map[string]interface{}{"payload": string(raw)})
	}

	ack := api.journal.Ingest(ctx.Request().Context(), data.notification(raw))
	api.logger.Info("c2b confirmation", map[string]interface{}{
		"receipt_id": data.TransID,
		"outcome":    ack.Outcome,
		"status":     ack.Transaction.Status,
		"reason":     ack.Transaction.ReviewReason,
	})
	return ctx.JSON(http.StatusOK, c2bAccepted)
}
