package journal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/routing"
)

var (
	ErrNotFound = errors.New("inbound transaction not found")
	// ErrDuplicateReceipt is returned by Repository.CreateTransaction when the external receipt id is taken.
	ErrDuplicateReceipt = errors.New("an inbound transaction with this receipt already exists")
	ErrNotPending       = errors.New("inbound transaction is not pending review")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// ReviewReason classifies why a notification could not be applied automatically.
type ReviewReason string

const (
	ReasonNone             ReviewReason = ""
	ReasonNoStudent        ReviewReason = "NO_STUDENT"
	ReasonMultipleStudents ReviewReason = "MULTIPLE_STUDENTS"
	ReasonNoFees           ReviewReason = "NO_FEES"
	ReasonOther            ReviewReason = "OTHER"
)

func reasonFor(miss routing.Miss) ReviewReason {
	switch miss {
	case routing.MissNoStudent:
		return ReasonNoStudent
	case routing.MissMultipleStudents:
		return ReasonMultipleStudents
	case routing.MissNoFees:
		return ReasonNoFees
	default:
		return ReasonOther
	}
}

// Transaction is the journal row of one payment network notification (a.k.a. mpesa transaction).
type Transaction struct {
	ID           string          `json:"id"`
	LineID       string          `json:"line_id,omitempty"`
	PaymentID    string          `json:"payment_id,omitempty"`
	Phone        string          `json:"phone"`
	Amount       int64           `json:"amount"`
	ReceiptID    string          `json:"receipt_id"`
	Channel      string          `json:"channel"`
	Reference    string          `json:"reference"`
	PayerName    string          `json:"payer_name,omitempty"`
	Status       Status          `json:"status"`
	ReviewReason ReviewReason    `json:"review_reason,omitempty"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (txn Transaction) Pending() bool { return txn.Status == StatusPending }

// Notification is one inbound payment notification as delivered by the network.
type Notification struct {
	ReceiptID  string
	Amount     string // decimal, major units
	Channel    string // business short-code
	Reference  string
	Phone      string
	PayerName  string
	RawPayload []byte
}

func (n *Notification) clean() {
	n.ReceiptID = core.CleanString(n.ReceiptID)
	n.Amount = core.CleanString(n.Amount)
	n.Channel = core.CleanString(n.Channel)
	n.Reference = core.CleanString(n.Reference)
	n.Phone = core.CleanString(n.Phone)
	n.PayerName = core.CleanString(n.PayerName)
}

// Outcome of Ingest. Every outcome is acknowledged to the network.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomePending   Outcome = "pending"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Ack struct {
	Outcome     Outcome
	Transaction Transaction
}

// QueryFilter is ANDed; zero values are ignored.
type QueryFilter struct {
	Status       Status       `query:"status"`
	ReviewReason ReviewReason `query:"reason"`
	CreatedFrom  time.Time    `query:"created_from"`
	CreatedTo    time.Time    `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = Status(core.CleanString(string(qf.Status)))
	qf.ReviewReason = ReviewReason(core.CleanString(string(qf.ReviewReason)))
}

// RetryResult counts what a RetryPending pass did.
type RetryResult struct {
	Scanned int
	Applied int
	Failed  int
}
