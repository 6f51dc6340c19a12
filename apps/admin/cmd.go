package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/rollover"
)

var (
	nowFunc = time.Now // mockable

	errHelp = errors.New("help provided")
)

type (
	pendingRetrier interface {
		RetryPending(ctx context.Context, since time.Time) (journal.RetryResult, error)
	}

	balanceSummarizer interface {
		Summarize(ctx context.Context, studentID string, currentTerm *ledger.Term, asOfYear int) (rollover.Summary, error)
	}
)

type commandLine struct {
	db          *sql.DB
	journal     pendingRetrier
	balances    balanceSummarizer
	retryWindow time.Duration
	currentYear int
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Fprintln(cli.out, "  retrypending [-window DURATION] - re-route pending inbound transactions")
	fmt.Fprintln(cli.out, "  balance -student ID [-term TERMn] [-year YEAR] - print a student's balance summary")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	retryCmd := flag.NewFlagSet("retrypending", flag.ContinueOnError)
	retryCmd.SetOutput(cli.out)
	retryWindow := retryCmd.Duration("window", cli.retryWindow, "How far back to look for pending transactions.")

	balanceCmd := flag.NewFlagSet("balance", flag.ContinueOnError)
	balanceCmd.SetOutput(cli.out)
	balanceStudent := balanceCmd.String("student", "", "The student id.")
	balanceTerm := balanceCmd.String("term", "", "The current term (TERM1, TERM2 or TERM3). The whole year when empty.")
	balanceYear := balanceCmd.Int("year", cli.currentYear, "The academic year.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "retrypending":
		if err := retryCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.retryPending(*retryWindow)
	case "balance":
		if err := balanceCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *balanceStudent == "" {
			balanceCmd.Usage()
			return errHelp
		}
		return cli.balance(*balanceStudent, *balanceTerm, *balanceYear)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) retryPending(window time.Duration) error {
	res, err := cli.journal.RetryPending(context.Background(), nowFunc().Add(-window))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d scanned, %d applied, %d failed\n", res.Scanned, res.Applied, res.Failed)
	return nil
}

func (cli *commandLine) balance(studentID, term string, year int) error {
	var currentTerm *ledger.Term
	if term != "" {
		t, err := ledger.ParseTerm(term)
		if err != nil {
			return err
		}
		currentTerm = &t
	}
	summary, err := cli.balances.Summarize(context.Background(), studentID, currentTerm, year)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
