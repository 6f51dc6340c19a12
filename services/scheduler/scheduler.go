// Package scheduler runs periodic fee jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/journal"
)

var nowFunc = time.Now // mockable

// PendingRetrier is implemented by journal.Service.
type PendingRetrier interface {
	RetryPending(ctx context.Context, since time.Time) (journal.RetryResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	retrier PendingRetrier
	window  time.Duration
	logger  core.Logger
}

func New(retrier PendingRetrier, window time.Duration, logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		retrier: retrier,
		window:  window,
		logger:  logger,
	}
}

// ScheduleRetry registers the pending retry job; schedule is a cron expression or descriptor ("@every 15m").
func (s *Scheduler) ScheduleRetry(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.RetryPending); err != nil {
		return errors.Wrapf(err, "scheduling pending retry %q", schedule)
	}
	return nil
}

// RetryPending re-routes PENDING transactions of the last window.
func (s *Scheduler) RetryPending() {
	res, err := s.retrier.RetryPending(context.Background(), nowFunc().Add(-s.window))
	if err != nil {
		s.logger.Error("retrying pending transactions", err)
		return
	}
	if res.Scanned > 0 {
		s.logger.Info(fmt.Sprintf("pending retry: %d scanned, %d applied, %d failed", res.Scanned, res.Applied, res.Failed))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
