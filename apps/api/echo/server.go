package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
	"github.com/trezcool/masomo-fees/core/ledger"
	"github.com/trezcool/masomo-fees/core/rollover"
)

type (
	LedgerService interface {
		Apply(ctx context.Context, np ledger.NewPayment) (ledger.Payment, error)
		GetLine(ctx context.Context, id string) (ledger.Line, error)
		GetPayment(ctx context.Context, id string) (ledger.Payment, error)
		QueryPayments(ctx context.Context, lineID string) ([]ledger.Payment, error)
	}

	JournalService interface {
		Ingest(ctx context.Context, n journal.Notification) journal.Ack
		Get(ctx context.Context, id string) (journal.Transaction, error)
		Query(ctx context.Context, filter *journal.QueryFilter, ordering []core.DBOrdering) ([]journal.Transaction, error)
		Resolve(ctx context.Context, id, lineID string) (journal.Transaction, error)
	}

	BalanceService interface {
		Summarize(ctx context.Context, studentID string, currentTerm *ledger.Term, asOfYear int) (rollover.Summary, error)
	}

	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Authorizer Authorizer
		LedgerSvc  LedgerService
		JournalSvc JournalService
		BalanceSvc BalanceService
	}

	Server struct {
		app      *echo.Echo
		address  string
		errors   chan error
		shutdown chan os.Signal
	}
)

var (
	_ http.Handler = (*Server)(nil) // interface compliance check

	_ LedgerService  = (*ledger.Service)(nil)
	_ JournalService = (*journal.Service)(nil)
	_ BalanceService = (*rollover.Service)(nil)
)

// NewServer wires the routes. The server listens for SIGINT and SIGTERM on ShutdownSignal.
func NewServer(deps Deps) *Server {
	s := &Server{
		app:      echo.New(),
		address:  deps.Conf.Server.Address,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps Deps) {
	conf := deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerC2BAPI(v1, deps.JournalSvc, deps.Logger)
	registerFeesAPI(v1, jwt, feesApi{
		ledger:   deps.LedgerSvc,
		balances: deps.BalanceSvc,
		authz:    deps.Authorizer,
		validate: deps.Validate,
		year:     conf.Fees.CurrentYear,
	})
	registerTransactionAPI(v1, jwt, deps.Authorizer, transactionApi{
		journal:  deps.JournalSvc,
		validate: deps.Validate,
	})
}

// Start blocks until the listener fails or is shut down; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to stop it gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"app": "Masomo Fees", "time": time.Now().UTC()})
}
