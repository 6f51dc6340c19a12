package emailsvc

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/student"
)

// StudentDirectory is what the receipt notifier reads from the directory.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id string) (student.Student, error)
	GuardiansOf(ctx context.Context, studentID string) ([]student.Guardian, error)
}

// ReceiptNotifier emails a payment receipt to the guardians of the paying student.
type ReceiptNotifier struct {
	mail  core.EmailService
	dir   StudentDirectory
	scale int32
}

var _ ledger.PaymentHook = (*ReceiptNotifier)(nil)

func NewReceiptNotifier(mailSvc core.EmailService, dir StudentDirectory, currencyScale int32) *ReceiptNotifier {
	return &ReceiptNotifier{mail: mailSvc, dir: dir, scale: currencyScale}
}

func (rn *ReceiptNotifier) PaymentApplied(ctx context.Context, line ledger.Line, pmt ledger.Payment) error {
	stud, err := rn.dir.GetStudent(ctx, line.StudentID)
	if err != nil {
		return errors.Wrap(err, "loading student")
	}
	guardians, err := rn.dir.GuardiansOf(ctx, line.StudentID)
	if err != nil {
		return errors.Wrap(err, "loading guardians")
	}

	msg := &core.EmailMessage{Subject: fmt.Sprintf("Payment received for %s", stud.Name)}
	for _, g := range guardians {
		if g.Email != "" {
			msg.To = append(msg.To, mail.Address{Name: g.Name, Address: g.Email})
		}
	}
	if !msg.HasRecipients() {
		return nil
	}

	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "We received %s for %s (%s).\n\n", journal.FormatAmount(pmt.Amount, rn.scale), stud.Name, stud.Ref)
	_, _ = fmt.Fprintf(body, "Reference: %s\n", pmt.Reference)
	_, _ = fmt.Fprintf(body, "Method: %s\n", pmt.Method)
	_, _ = fmt.Fprintf(body, "Date: %s\n", pmt.PaidAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(body, "Fee: %s", line.FeeCategoryID)
	if line.Term != nil {
		_, _ = fmt.Fprintf(body, " %s", *line.Term)
	}
	_, _ = fmt.Fprintf(body, " %d\n", line.AcademicYear)
	_, _ = fmt.Fprintf(body, "Outstanding: %s\n", journal.FormatAmount(outstanding(line), rn.scale))
	msg.Body = body.String()

	rn.mail.SendMessages(msg)
	return nil
}

func outstanding(line ledger.Line) int64 {
	if line.AmountDue > line.AmountPaid {
		return line.AmountDue - line.AmountPaid
	}
	return 0
}
