package flow

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"studyCafeCRM/pkg/logger"
)

const tickSchedule = "* * * * *"

type dueDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (DueReport, error)
}

// Scheduler runs DispatchDue once a minute in-process, for deployments where
// the worker does not poll the due endpoint itself.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher dueDispatcher
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewScheduler(dispatcher dueDispatcher, loc *time.Location) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// a slow tick is skipped rather than stacked
		cron:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(tickSchedule, s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("flow_scheduler_started", "schedule", tickSchedule)
	return nil
}

// Tick runs one scheduling pass. Exported so tests and ops tooling can
// trigger a pass without waiting for the clock.
func (s *Scheduler) Tick() {
	ctx := logger.WithTraceID(s.ctx, "scheduler-"+time.Now().UTC().Format("20060102T150405"))

	report, err := s.dispatcher.DispatchDue(ctx, time.Now())
	if err != nil {
		logger.ErrorCtx(ctx, "flow_scheduler_tick_failed", err)
		return
	}
	if report.Due > 0 {
		logger.InfoCtx(ctx, "flow_scheduler_tick",
			"due", report.Due,
			"dispatched", report.Dispatched,
			"failed", report.Failed,
		)
	}
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	logger.Info("flow_scheduler_stopped")
}
