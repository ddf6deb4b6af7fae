package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
)

// Decision is the evaluator's verdict for the current run.
type Decision int

const (
	ProceedNow Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == ProceedNow {
		return "PROCEED_NOW"
	}
	return "SKIP"
}

// ScheduleSource provides an account's configured publish times for a
// weekday, in evaluation order.
type ScheduleSource interface {
	TimesFor(account, weekday string) ([]string, error)
}

// Evaluator decides whether "now" falls inside a publishing window. Each
// scheduled instant carries a tolerance interval of [-grace, +maxWait]:
// slightly late still proceeds, slightly early waits for the exact target.
type Evaluator struct {
	logger   *zap.Logger
	source   ScheduleSource
	grace    time.Duration
	maxWait  time.Duration
	location *time.Location

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEvaluator(cfg *config.ScheduleConfig, source ScheduleSource, logger *zap.Logger) (*Evaluator, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
	}

	return &Evaluator{
		logger:   logger,
		source:   source,
		grace:    time.Duration(cfg.GraceSeconds) * time.Second,
		maxWait:  time.Duration(cfg.MaxWaitSeconds) * time.Second,
		location: location,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Evaluate returns ProceedNow when the current instant falls inside a
// window for today, blocking until the target time when invoked early.
// A broken or unreadable schedule fails open: the evaluator proceeds
// rather than silently stopping all publishing on a config outage.
func (e *Evaluator) Evaluate(ctx context.Context, account string) (Decision, error) {
	now := e.now().In(e.location)
	weekday := now.Weekday().String()

	times, err := e.source.TimesFor(account, weekday)
	if err != nil {
		e.logger.Warn("Schedule unreadable, failing open",
			zap.String("account", account),
			zap.Error(err))
		return ProceedNow, nil
	}

	for _, entry := range times {
		target, err := time.ParseInLocation("15:04", entry, e.location)
		if err != nil {
			e.logger.Warn("Skipping malformed schedule time",
				zap.String("account", account),
				zap.String("time", entry))
			continue
		}

		scheduled := time.Date(now.Year(), now.Month(), now.Day(),
			target.Hour(), target.Minute(), 0, 0, e.location)
		delta := scheduled.Sub(now)

		if delta < -e.grace || delta > e.maxWait {
			continue
		}

		if delta > 0 {
			e.logger.Info("Inside window early, waiting for target time",
				zap.String("account", account),
				zap.String("target", entry),
				zap.Duration("wait", delta))
			if err := e.sleep(ctx, delta); err != nil {
				return Skip, err
			}
		}

		e.logger.Info("Schedule window matched",
			zap.String("account", account),
			zap.String("target", entry))
		return ProceedNow, nil
	}

	return Skip, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
