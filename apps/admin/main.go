package main

import (
	"os"

	"github.com/trezcool/masomo-fees/apps/shared"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewLogrusLogger(logsvc.NewLogrus(conf))

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	svcs, err := shared.NewServices(conf, db, logger, shared.NewMailService(conf, logger))
	if err != nil {
		logger.Fatal("setting up services", err)
	}

	// start CLI
	cli := commandLine{
		db:          db.DB,
		journal:     svcs.Journal,
		balances:    svcs.Balances,
		retryWindow: conf.Fees.RetryWindow,
		currentYear: conf.Fees.CurrentYear,
		out:         os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		db.Close()
		os.Exit(1)
	}
}
