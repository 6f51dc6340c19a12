package echoapi

import (
	"encoding/json"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// flexAmount accepts both JSON numbers and strings; parsing happens in the journal.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*a = ""
		return nil
	}
	*a = flexAmount(n.String())
	return nil
}

// C2BRequest is the mobile-money customer-to-business callback envelope.
type C2BRequest struct {
	TransactionType   string     `json:"TransactionType"`
	TransID           string     `json:"TransID"`
	TransTime         string     `json:"TransTime"`
	TransAmount       flexAmount `json:"TransAmount"`
	BusinessShortCode string     `json:"BusinessShortCode"`
	BillRefNumber     string     `json:"BillRefNumber"`
	MSISDN            string     `json:"MSISDN"`
	FirstName         string     `json:"FirstName"`
	MiddleName        string     `json:"MiddleName"`
	LastName          string     `json:"LastName"`
}

func (req C2BRequest) payerName() string {
	var parts []string
	for _, p := range []string{req.FirstName, req.MiddleName, req.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (req C2BRequest) notification(raw []byte) journal.Notification {
	return journal.Notification{
		ReceiptID:  req.TransID,
		Amount:     string(req.TransAmount),
		Channel:    req.BusinessShortCode,
		Reference:  req.BillRefNumber,
		Phone:      req.MSISDN,
		PayerName:  req.payerName(),
		RawPayload: raw,
	}
}

// C2BResponse is the only answer the payment network gets.
type C2BResponse struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var c2bAccepted = C2BResponse{ResultCode: 0, ResultDesc: "Accepted"}

type ResolveRequest struct {
	LineID string `json:"line_id" validate:"required"`
}

type BalanceQuery struct {
	Term string `query:"term"`
	Year int    `query:"year"`
}
