package shared

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/phone"
	"github.com/trezcool/masomo-fees/core/rollover"
	"github.com/trezcool/masomo-fees/core/routing"
	"github.com/trezcool/masomo-fees/core/student"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/storage/database/sqlboiler"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
)

type Services struct {
	Directory student.Directory
	Ledger    *ledger.Service
	Journal   *journal.Service
	Balances  *rollover.Service
}

// NewServices builds the fee services on top of the Postgres repositories.
// It fails on an invalid routing table, current term or null term rank.
func NewServices(conf *core.Config, db *sqlx.DB, logger core.Logger, mailSvc core.EmailService) (*Services, error) {
	table, err := routing.TableFromConfig(conf)
	if err != nil {
		return nil, errors.Wrap(err, "loading routing table")
	}
	term, err := ledger.ParseTerm(conf.Fees.CurrentTerm)
	if err != nil {
		return nil, errors.Wrap(err, "parsing current term")
	}
	rolloverOpts, err := rollover.NewOptions(conf.Fees.NullTermRank)
	if err != nil {
		return nil, errors.Wrap(err, "reading rollover options")
	}

	tx := sqlxrepos.NewTransactor(db)
	dir := sqlxrepos.NewDirectory(db)
	lines := sqlxrepos.NewLineRepository(db)
	scale := conf.Fees.CurrencyScale

	ledgerSvc := ledger.NewService(tx, lines, sqlxrepos.NewPaymentRepository(db), logger,
		emailsvc.NewReceiptNotifier(mailSvc, dir, scale),
	)
	router := routing.NewRouter(
		table,
		phone.NewResolver(phone.NewPlan(conf.Fees.CountryCode), dir),
		dir,
		lines,
		routing.Period{Term: term, Year: conf.Fees.CurrentYear},
	)

	return &Services{
		Directory: dir,
		Ledger:    ledgerSvc,
		Journal: journal.NewService(tx, sqlxrepos.NewTransactionRepository(db), router, ledgerSvc, logger, scale,
			journal.NewAliasLearner(dir),
		),
		Balances: rollover.NewService(boiledrepos.NewLineReader(db), rolloverOpts),
	}, nil
}

// NewMailService prints e-mails in debug mode and sends them through Sendgrid otherwise.
func NewMailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}
